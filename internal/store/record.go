package store

import "time"

// Stage identifies the funnel step a user is currently in. It is the single
// source of truth for segment membership.
type Stage string

const (
	// StageNew marks a user who made first contact but has not completed the funnel entry.
	StageNew Stage = "new"
	// StageClickedRegister marks a user who received their registration link.
	StageClickedRegister Stage = "clicked_register"
	// StageRegistered marks a user confirmed by the affiliate network.
	StageRegistered Stage = "registered"
	// StageDeposited marks a user who made their first deposit.
	StageDeposited Stage = "deposited"
)

// Stages returns all funnel stages in funnel order.
func Stages() []Stage {
	return []Stage{StageNew, StageClickedRegister, StageRegistered, StageDeposited}
}

// Valid reports whether s is a known funnel stage.
func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageClickedRegister, StageRegistered, StageDeposited:
		return true
	}
	return false
}

// Record holds the per-user funnel state. Records are created lazily on
// first contact and mutated only through funnel transitions.
type Record struct {
	ID        int64  `db:"id"`
	FirstName string `db:"first_name"`
	// Language is empty until the user picks one or the auto-default fires.
	Language     string `db:"language"`
	AgeConfirmed bool   `db:"age_confirmed"`
	Nickname     string `db:"nickname"`
	// Payload is the acquisition tag captured at first contact, immutable afterwards.
	Payload string `db:"payload"`
	Stage   Stage  `db:"stage"`
	// AwaitingNickname gates interpretation of the next free-text message.
	AwaitingNickname bool      `db:"awaiting_nickname"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
