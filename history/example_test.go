/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package history

import (
	"fmt"
	"log"
)

func Example() {
	// Keep at most 3 last dialogue turns.
	h, err := New(3)
	if err != nil {
		log.Fatal(err)
	}

	h.Add("user", "What is Go?", nil)
	h.Add("assistant", "A programming language.", nil)
	h.Add("user", "Who made it?", nil)
	h.Add("assistant", "Google.", nil)

	// The oldest turn is dropped, IDs keep growing.
	for _, turn := range h.Turns() {
		fmt.Printf("#%d %s: %s\n", turn.ID, turn.Role, turn.Content)
	}

	for _, turn := range h.Turns(FilterLastN(1)) {
		fmt.Printf("last: %s\n", turn.Content)
	}

	// Output:
	// #1 assistant: A programming language.
	// #2 user: Who made it?
	// #3 assistant: Google.
	// last: Google.
}
