/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package sessionlimit

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-llmkit/log"
)

// DefaultMaxConcurrentSessions is a default value for the maximum number of concurrently held sessions.
const DefaultMaxConcurrentSessions = 10

// ErrSessionAlreadyHeld is returned by Acquire when the passed session ID is already admitted
// and has not been released yet.
var ErrSessionAlreadyHeld = errors.New("session is already held")

// ErrSessionAlreadyQueued is returned by Acquire when the passed session ID is already waiting
// for a free slot.
var ErrSessionAlreadyQueued = errors.New("session is already queued")

// Limiter bounds the number of concurrently held sessions.
// Acquire admits the caller immediately while free slots exist and queues it otherwise.
// All methods are safe for concurrent use.
type Limiter struct {
	capacity int

	mu      sync.Mutex
	held    map[string]time.Time
	waiters *list.List // of *waiter

	logger  log.FieldLogger
	metrics MetricsCollector
}

// waiter is a queued acquisition. The admission grant is recorded in the held set
// under the limiter lock before admitted is closed, so a late arriver can never
// steal the slot of an already signaled waiter.
type waiter struct {
	sessionID string
	admitted  chan struct{}
}

// Opts represents options for the Limiter.
type Opts struct {
	// Logger is used to report diagnostic events (queueing, release of unknown IDs).
	// May be nil, in this case logging is disabled.
	Logger log.FieldLogger

	// MetricsCollector gathers occupancy and queue statistics.
	// May be nil, in this case metrics collecting is disabled.
	MetricsCollector MetricsCollector
}

// New creates a new Limiter with the given capacity.
// Capacity must be positive, otherwise an error is returned.
func New(maxConcurrentSessions int) (*Limiter, error) {
	return NewWithOpts(maxConcurrentSessions, Opts{})
}

// NewWithOpts is a configurable version of New.
func NewWithOpts(maxConcurrentSessions int, opts Opts) (*Limiter, error) {
	if maxConcurrentSessions <= 0 {
		return nil, fmt.Errorf("max concurrent sessions must be positive, got %d", maxConcurrentSessions)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetricsCollector
	}
	return &Limiter{
		capacity: maxConcurrentSessions,
		held:     make(map[string]time.Time),
		waiters:  list.New(),
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Must is a version of New that panics on error.
func Must(maxConcurrentSessions int) *Limiter {
	l, err := New(maxConcurrentSessions)
	if err != nil {
		panic(err)
	}
	return l
}

// Capacity returns the configured maximum number of concurrently held sessions.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Acquire admits the session identified by sessionID, blocking while all slots are taken.
// Queued callers are admitted strictly in FIFO order. The ID is used for diagnostics and
// release matching; it is not required to be globally unique, but acquiring an ID that is
// currently held or queued fails with ErrSessionAlreadyHeld or ErrSessionAlreadyQueued.
//
// If ctx is done before a slot becomes available, the waiter is removed from
// the queue and ctx.Err() is returned.
func (l *Limiter) Acquire(ctx context.Context, sessionID string) error {
	l.mu.Lock()

	if _, ok := l.held[sessionID]; ok {
		l.mu.Unlock()
		return fmt.Errorf("acquire session %q: %w", sessionID, ErrSessionAlreadyHeld)
	}
	for e := l.waiters.Front(); e != nil; e = e.Next() {
		if e.Value.(*waiter).sessionID == sessionID {
			l.mu.Unlock()
			return fmt.Errorf("acquire session %q: %w", sessionID, ErrSessionAlreadyQueued)
		}
	}

	// Queue emptiness is checked along with occupancy so that a new arriver cannot
	// overtake waiters that are still queued.
	if len(l.held) < l.capacity && l.waiters.Len() == 0 {
		l.admitLocked(sessionID)
		l.mu.Unlock()
		return nil
	}

	w := &waiter{sessionID: sessionID, admitted: make(chan struct{})}
	elem := l.waiters.PushBack(w)
	l.metrics.SetQueueLen(l.waiters.Len())
	l.mu.Unlock()
	l.logger.Debug("session is waiting for a free slot", log.String("session_id", sessionID))

	select {
	case <-w.admitted:
		return nil
	case <-ctx.Done():
	}

	// The lock must be taken unconditionally here: a queued waiter may be admitted
	// concurrently with cancellation, and then its slot has to be given back.
	l.mu.Lock()
	select {
	case <-w.admitted:
		l.releaseLocked(sessionID)
		l.mu.Unlock()
		return ctx.Err()
	default:
	}
	l.waiters.Remove(elem)
	l.metrics.SetQueueLen(l.waiters.Len())
	l.mu.Unlock()
	return ctx.Err()
}

// Release gives the slot held by sessionID back. If any waiters are queued, the head
// of the queue is admitted within the same critical section, so occupancy never dips
// observably below its steady value on hand-over.
//
// Releasing an ID that is not currently held is a no-op (callers may double-release
// defensively); the event is logged for diagnostics.
func (l *Limiter) Release(sessionID string) {
	l.mu.Lock()
	if _, ok := l.held[sessionID]; !ok {
		l.mu.Unlock()
		l.logger.Warn("release of unknown session", log.String("session_id", sessionID))
		return
	}
	l.releaseLocked(sessionID)
	l.mu.Unlock()
	l.logger.Debug("session released", log.String("session_id", sessionID))
}

// Do acquires a session slot, invokes fn and always releases the slot afterwards,
// whether fn returned an error or panicked. This is the recommended way to honor
// the acquire/release pairing contract.
func (l *Limiter) Do(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx, sessionID); err != nil {
		return err
	}
	defer l.Release(sessionID)
	return fn(ctx)
}

// QueueStatus is an atomic snapshot of the limiter state.
type QueueStatus struct {
	// Occupancy is the number of currently admitted, not yet released sessions.
	Occupancy int

	// Capacity is the configured maximum occupancy.
	Capacity int

	// WaitingCount is the number of queued waiters.
	WaitingCount int

	// HeldSessionIDs contains the IDs of currently admitted sessions, in unspecified order.
	HeldSessionIDs []string

	// WaitingSessionIDs contains the IDs of queued waiters, head of the queue first.
	WaitingSessionIDs []string
}

// QueueStatus reports current occupancy, capacity and queue depth atomically
// with respect to concurrent Acquire/Release calls.
func (l *Limiter) QueueStatus() QueueStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := QueueStatus{
		Occupancy:    len(l.held),
		Capacity:     l.capacity,
		WaitingCount: l.waiters.Len(),
	}
	if len(l.held) != 0 {
		st.HeldSessionIDs = make([]string, 0, len(l.held))
		for id := range l.held {
			st.HeldSessionIDs = append(st.HeldSessionIDs, id)
		}
	}
	if l.waiters.Len() != 0 {
		st.WaitingSessionIDs = make([]string, 0, l.waiters.Len())
		for e := l.waiters.Front(); e != nil; e = e.Next() {
			st.WaitingSessionIDs = append(st.WaitingSessionIDs, e.Value.(*waiter).sessionID)
		}
	}
	return st
}

// admitLocked records sessionID as held. Must be called with the lock taken.
func (l *Limiter) admitLocked(sessionID string) {
	l.held[sessionID] = time.Now()
	l.metrics.SetOccupancy(len(l.held))
	l.metrics.IncAcquiredTotal()
}

// releaseLocked frees the slot of sessionID and admits the head waiter if any.
// Must be called with the lock taken.
func (l *Limiter) releaseLocked(sessionID string) {
	delete(l.held, sessionID)
	if elem := l.waiters.Front(); elem != nil && len(l.held) < l.capacity {
		l.waiters.Remove(elem)
		l.metrics.SetQueueLen(l.waiters.Len())
		w := elem.Value.(*waiter)
		l.admitLocked(w.sessionID)
		close(w.admitted)
		return
	}
	l.metrics.SetOccupancy(len(l.held))
}
