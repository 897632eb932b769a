// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aiku/slack-rtm/pkg/slack"
)

const schema = `
CREATE TABLE IF NOT EXISTS slack_users (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	mention_name TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}'
);
`

// SQLite is a sqlite-backed UserStore.
type SQLite struct {
	db *sql.DB
}

var _ slack.UserStore = (*SQLite)(nil)

// OpenSQLite opens (or creates) the identity store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping identity store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate identity store: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Find returns the record for id, nil when unseen.
func (s *SQLite) Find(ctx context.Context, id string) (*slack.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, mention_name, metadata FROM slack_users WHERE id = ?`, id)

	var user slack.User
	var metadata string
	if err := row.Scan(&user.ID, &user.Name, &user.MentionName, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up user %s: %w", id, err)
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &user.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for user %s: %w", id, err)
		}
	}
	return &user, nil
}

// Create upserts a record keyed by its ID.
func (s *SQLite) Create(ctx context.Context, user *slack.User) (*slack.User, error) {
	metadata := []byte("{}")
	if user.Metadata != nil {
		var err error
		metadata, err = json.Marshal(user.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for user %s: %w", user.ID, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slack_users (id, name, mention_name, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mention_name = excluded.mention_name,
			metadata = excluded.metadata`,
		user.ID, user.Name, user.MentionName, string(metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	return user, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
