/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package sessionlimit

import (
	"context"
	"fmt"
	"log"
)

func Example() {
	// Allow at most 2 LLM requests to be in flight at the same time.
	limiter, err := New(2)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	if err := limiter.Acquire(ctx, "session-a"); err != nil {
		log.Fatal(err)
	}
	if err := limiter.Acquire(ctx, "session-b"); err != nil {
		log.Fatal(err)
	}

	status := limiter.QueueStatus()
	fmt.Printf("occupancy: %d/%d, waiting: %d\n", status.Occupancy, status.Capacity, status.WaitingCount)

	limiter.Release("session-a")
	limiter.Release("session-b")

	// Do acquires a slot, runs the function and always releases the slot.
	err = limiter.Do(ctx, "session-c", func(ctx context.Context) error {
		fmt.Println("calling the LLM")
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	status = limiter.QueueStatus()
	fmt.Printf("occupancy: %d/%d, waiting: %d\n", status.Occupancy, status.Capacity, status.WaitingCount)

	// Output:
	// occupancy: 2/2, waiting: 0
	// calling the LLM
	// occupancy: 0/2, waiting: 0
}
