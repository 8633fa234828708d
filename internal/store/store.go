// Package store persists the chat-channel to assistant-thread mapping.
//
// Each Slack channel that has engaged the assistant owns exactly one
// thread for its conversational context. The mapping is persisted in
// SQLite so threads survive restarts; rows are never deleted — thread
// lifetime is governed by the assistant service's own retention.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ChannelThread is one channel's assistant-thread association.
type ChannelThread struct {
	Channel  string
	ThreadID string
	LastSeen time.Time
}

// Store persists channel→thread rows in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a thread store, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate thread store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_threads (
			channel    TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Lookup returns the thread id for a channel, or ok=false if the
// channel has no thread yet.
func (s *Store) Lookup(channel string) (string, bool, error) {
	var threadID string
	err := s.db.QueryRow(
		`SELECT thread_id FROM channel_threads WHERE channel = ?`,
		channel,
	).Scan(&threadID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return threadID, true, nil
}

// Claim records threadID as the channel's thread unless another thread
// was claimed first, and returns whichever thread id won. Two
// concurrent claims for the same channel therefore always resolve to a
// single thread: the loser's candidate is simply not recorded.
func (s *Store) Claim(channel, threadID string) (string, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO channel_threads (channel, thread_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel) DO NOTHING`,
		channel, threadID, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("claim thread for %s: %w", channel, err)
	}

	winner, ok, err := s.Lookup(channel)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("claim thread for %s: row missing after insert", channel)
	}
	return winner, nil
}

// Touch bumps the channel's last-activity timestamp. Unknown channels
// are a no-op.
func (s *Store) Touch(channel string) error {
	_, err := s.db.Exec(
		`UPDATE channel_threads SET updated_at = ? WHERE channel = ?`,
		time.Now().UTC(), channel,
	)
	return err
}

// List returns all channel→thread rows ordered by most recent activity.
func (s *Store) List() ([]ChannelThread, error) {
	rows, err := s.db.Query(
		`SELECT channel, thread_id, updated_at FROM channel_threads ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelThread
	for rows.Next() {
		var ct ChannelThread
		if err := rows.Scan(&ct.Channel, &ct.ThreadID, &ct.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}
