// Package buffer implements the per-turn holding buffer that bridges
// "tool executed" and "next message persisted". A buffer is owned
// exclusively by one turn's execution; it must never be shared across
// turns, and it must always end the turn cleared.
package buffer

import "context"

// TurnBuffer stages whitelisted result fields for a single turn. A turn's
// promotions run from a single goroutine; implementations need not support
// concurrent writers on one buffer.
type TurnBuffer interface {
	// Put stages a value under key, reporting whether a prior value for
	// the same key was replaced.
	Put(ctx context.Context, key string, value any) (replaced bool, err error)

	// Append stages list entries under key, concatenating onto whatever
	// the key already holds. List-typed keys accumulate across the
	// turn's calls instead of replacing each other.
	Append(ctx context.Context, key string, values []any) error

	// Snapshot returns the staged fields.
	Snapshot(ctx context.Context) (map[string]any, error)

	// Clear discards everything staged. Safe to call on an empty buffer.
	Clear(ctx context.Context) error
}

// Factory creates the buffer for one turn.
type Factory interface {
	ForTurn(turnID string) TurnBuffer
}
