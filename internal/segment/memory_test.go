package segment

import (
	"context"
	"testing"

	"github.com/m3rciful/funnelbot/internal/store"
)

func TestRebuildMovesMembership(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	if err := idx.Rebuild(ctx, 1, store.StageNew); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := idx.Rebuild(ctx, 1, store.StageRegistered); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for _, stage := range store.Stages() {
		members, err := idx.Members(ctx, stage)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		want := 0
		if stage == store.StageRegistered {
			want = 1
		}
		if len(members) != want {
			t.Fatalf("segment %s has %d members, want %d", stage, len(members), want)
		}
	}
}

func TestRebuildSameStageIsIdempotent(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := idx.Rebuild(ctx, 1, store.StageNew); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
	}
	counts, err := idx.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[store.StageNew] != 1 {
		t.Fatalf("count = %d, want 1", counts[store.StageNew])
	}
}

func TestCounts(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	_ = idx.Rebuild(ctx, 1, store.StageNew)
	_ = idx.Rebuild(ctx, 2, store.StageNew)
	_ = idx.Rebuild(ctx, 3, store.StageDeposited)

	counts, err := idx.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[store.StageNew] != 2 || counts[store.StageDeposited] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if counts[store.StageClickedRegister] != 0 || counts[store.StageRegistered] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}
