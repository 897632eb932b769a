// Copyright 2024-2026 Aiku AI

// Package store provides identity-store implementations for the Slack
// adapter: an in-memory store for hosts that re-fetch profiles on restart,
// and a sqlite-backed store for hosts that want them to survive one.
package store

import (
	"context"

	"go.mau.fi/util/exsync"

	"github.com/aiku/slack-rtm/pkg/slack"
)

// Memory is an in-memory UserStore. Safe for concurrent use.
type Memory struct {
	users *exsync.Map[string, *slack.User]
}

var _ slack.UserStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: exsync.NewMap[string, *slack.User]()}
}

// Find returns the record for id, nil when unseen.
func (m *Memory) Find(_ context.Context, id string) (*slack.User, error) {
	user, _ := m.users.Get(id)
	return user, nil
}

// Create upserts a record keyed by its ID.
func (m *Memory) Create(_ context.Context, user *slack.User) (*slack.User, error) {
	m.users.Set(user.ID, user)
	return user, nil
}
