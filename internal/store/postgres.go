package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewPostgres constructs a Store backed by the users table.
func NewPostgres(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

const selectUser = `
	SELECT id, first_name, language, age_confirmed, nickname, payload,
	       stage, awaiting_nickname, created_at, updated_at
	FROM users WHERE id = $1`

func (p *postgresStore) GetOrCreate(ctx context.Context, id int64) (Record, bool, error) {
	var rec Record
	err := p.db.GetContext(ctx, &rec, `
		INSERT INTO users (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, first_name, language, age_confirmed, nickname, payload,
		          stage, awaiting_nickname, created_at, updated_at`, id)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, fmt.Errorf("store: create %d: %w", id, err)
	}

	// Conflict path: the row already existed.
	if err := p.db.GetContext(ctx, &rec, selectUser, id); err != nil {
		return Record{}, false, fmt.Errorf("store: get %d: %w", id, err)
	}
	return rec, false, nil
}

func (p *postgresStore) Get(ctx context.Context, id int64) (Record, bool, error) {
	var rec Record
	err := p.db.GetContext(ctx, &rec, selectUser, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("store: get %d: %w", id, err)
	}
	return rec, true, nil
}

func (p *postgresStore) Update(ctx context.Context, id int64, mutate func(*Record)) (Record, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rec Record
	err = tx.GetContext(ctx, &rec, selectUser+` FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: lock %d: %w", id, err)
	}

	mutate(&rec)
	rec.ID = id

	err = tx.GetContext(ctx, &rec, `
		UPDATE users SET
			first_name = $2, language = $3, age_confirmed = $4, nickname = $5,
			payload = $6, stage = $7, awaiting_nickname = $8, updated_at = now()
		WHERE id = $1
		RETURNING id, first_name, language, age_confirmed, nickname, payload,
		          stage, awaiting_nickname, created_at, updated_at`,
		rec.ID, rec.FirstName, rec.Language, rec.AgeConfirmed, rec.Nickname,
		rec.Payload, rec.Stage, rec.AwaitingNickname)
	if err != nil {
		return Record{}, fmt.Errorf("store: update %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("store: commit %d: %w", id, err)
	}
	return rec, nil
}
