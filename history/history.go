/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package history provides an in-memory bounded dialogue history for LLM conversations.
// History keeps the last N turns, assigns monotonically increasing turn IDs,
// and is safe for concurrent use. It's not persisted anywhere.
package history

import (
	"fmt"
	"sync"
	"time"
)

// DefaultMaxTurns is the number of dialogue turns the History keeps when it's not configured.
const DefaultMaxTurns = 100

// Turn represents a single dialogue turn.
type Turn struct {
	ID       int
	Role     string
	Content  string
	Time     time.Time
	Metadata map[string]interface{}
}

// History is a bounded in-memory dialogue history.
type History struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
	nextID   int
}

// New creates a new History keeping at most maxTurns last turns.
// If maxTurns is 0, DefaultMaxTurns is used.
func New(maxTurns int) (*History, error) {
	if maxTurns < 0 {
		return nil, fmt.Errorf("max turns must not be negative, got %d", maxTurns)
	}
	if maxTurns == 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{turns: make([]Turn, 0, maxTurns), maxTurns: maxTurns}, nil
}

// Must creates a new History and panics if any error occurs.
func Must(maxTurns int) *History {
	h, err := New(maxTurns)
	if err != nil {
		panic(err)
	}
	return h
}

// Add appends a new turn to the history and returns its ID.
// When the history is full, the oldest turn is dropped.
func (h *History) Add(role, content string, metadata map[string]interface{}) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	turn := Turn{
		ID:       h.nextID,
		Role:     role,
		Content:  content,
		Time:     time.Now(),
		Metadata: metadata,
	}
	h.nextID++
	if len(h.turns) == h.maxTurns {
		copy(h.turns, h.turns[1:])
		h.turns = h.turns[:len(h.turns)-1]
	}
	h.turns = append(h.turns, turn)
	return turn.ID
}

// Filter selects a subset of turns. See FilterLastN and FilterRange.
type Filter func(turns []Turn) []Turn

// FilterLastN selects the last n turns.
func FilterLastN(n int) Filter {
	return func(turns []Turn) []Turn {
		if n >= len(turns) {
			return turns
		}
		return turns[len(turns)-n:]
	}
}

// FilterRange selects turns with IDs in the [startID, endID] range inclusive.
func FilterRange(startID, endID int) Filter {
	return func(turns []Turn) []Turn {
		filtered := make([]Turn, 0, len(turns))
		for _, turn := range turns {
			if turn.ID >= startID && turn.ID <= endID {
				filtered = append(filtered, turn)
			}
		}
		return filtered
	}
}

// Turns returns a copy of the kept turns with the filters applied in order.
func (h *History) Turns(filters ...Filter) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := h.turns
	for _, filter := range filters {
		turns = filter(turns)
	}
	result := make([]Turn, len(turns))
	copy(result, turns)
	return result
}

// TurnByID returns the turn with the given ID, false if the turn is not kept.
func (h *History) TurnByID(id int) (Turn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, turn := range h.turns {
		if turn.ID == id {
			return turn, true
		}
	}
	return Turn{}, false
}

// RemoveRange removes turns with IDs in the [startID, endID] range inclusive.
// Turn IDs keep growing, removed IDs are never reused.
func (h *History) RemoveRange(startID, endID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.turns[:0]
	for _, turn := range h.turns {
		if turn.ID < startID || turn.ID > endID {
			kept = append(kept, turn)
		}
	}
	h.turns = kept
}

// Clear removes all turns from the history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
}

// Len returns the number of kept turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
