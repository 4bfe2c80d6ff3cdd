// Package store defines the user record store contract and its
// implementations. The in-memory store carries the reference semantics;
// the postgres store provides restart durability behind the same contract.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Update when the record does not exist.
var ErrNotFound = errors.New("store: user not found")

// Store is the durable per-user state keyed by the Telegram user id.
// Update must be atomic per id; updates to different ids must not block
// each other. All mutation goes through the funnel machine.
type Store interface {
	// GetOrCreate returns the record for id, creating a default one on
	// first contact. The second result reports whether it was created.
	GetOrCreate(ctx context.Context, id int64) (Record, bool, error)
	// Get returns the record for id if it exists.
	Get(ctx context.Context, id int64) (Record, bool, error)
	// Update applies mutate to the record atomically and returns the result.
	Update(ctx context.Context, id int64, mutate func(*Record)) (Record, error)
}
