// Package segment maintains stage membership sets derived from user
// records. The index exists for counting and targeting; the record store
// stays authoritative and the index is rebuilt on every transition.
package segment

import (
	"context"

	"github.com/m3rciful/funnelbot/internal/store"
)

// Index tracks which funnel stage each user currently belongs to.
// Every user id appears in at most one stage set at any time.
type Index interface {
	// Rebuild removes id from every stage set and inserts it into the set
	// for stage. Called on every transition, including self-transitions.
	Rebuild(ctx context.Context, id int64, stage store.Stage) error
	// Counts returns the current size of every stage set.
	Counts(ctx context.Context) (map[store.Stage]int, error)
	// Members returns the ids currently in the given stage set.
	Members(ctx context.Context, stage store.Stage) ([]int64, error)
}
