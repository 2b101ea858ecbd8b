/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides helpers that are used in tests of other go-llmkit packages.
package testutil

type tHelper interface {
	Helper()
}
