package store

import (
	"context"
	"errors"
	"testing"
)

func TestGetOrCreate(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	rec, created, err := st.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first contact")
	}
	if rec.ID != 7 || rec.Stage != StageNew {
		t.Fatalf("defaults wrong: %+v", rec)
	}
	if rec.Language != "" || rec.AgeConfirmed || rec.AwaitingNickname {
		t.Fatalf("defaults wrong: %+v", rec)
	}

	again, created, err := st.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if created {
		t.Fatal("expected created=false on second contact")
	}
	if again.ID != 7 {
		t.Fatalf("id = %d", again.ID)
	}
}

func TestGetMissing(t *testing.T) {
	st := NewMemory()
	_, ok, err := st.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing record")
	}
}

func TestUpdate(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if _, _, err := st.GetOrCreate(ctx, 7); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := st.Update(ctx, 7, func(r *Record) {
		r.Language = "ru"
		r.Stage = StageClickedRegister
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Language != "ru" || rec.Stage != StageClickedRegister {
		t.Fatalf("update not applied: %+v", rec)
	}

	got, _, err := st.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Language != "ru" {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestUpdateMissing(t *testing.T) {
	st := NewMemory()
	_, err := st.Update(context.Background(), 1, func(r *Record) { r.Language = "en" })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateCannotChangeID(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if _, _, err := st.GetOrCreate(ctx, 7); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := st.Update(ctx, 7, func(r *Record) { r.ID = 99 })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.ID != 7 {
		t.Fatalf("id changed to %d", rec.ID)
	}
}

func TestStageValid(t *testing.T) {
	for _, s := range Stages() {
		if !s.Valid() {
			t.Fatalf("stage %s reported invalid", s)
		}
	}
	if Stage("bogus").Valid() {
		t.Fatal("bogus stage reported valid")
	}
}
