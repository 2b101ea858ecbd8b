/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package sessionlimit provides admission control for a bounded pool of concurrent
// LLM sessions. Each session represents one in-flight outbound call to a model
// provider. When all slots are taken, callers are queued and admitted strictly
// in arrival (FIFO) order as slots are released.
//
// A Limiter instance is created explicitly and may be shared by reference across
// several clients; there is no process-wide default. The typical usage is the
// scoped form, which guarantees the slot is given back on all exit paths:
//
//	limiter, err := sessionlimit.New(10)
//	if err != nil {
//		return err
//	}
//	err = limiter.Do(ctx, sessionID, func(ctx context.Context) error {
//		return client.Chat(ctx, req)
//	})
//
// A waiter whose context is canceled while queued is removed from the queue
// without consuming a slot.
package sessionlimit
