// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
)

// UserStore is the identity store the host provides. Find returns nil with
// no error when the actor is unknown. Create is an upsert keyed by the
// actor's ID, so concurrent creates for one identifier converge on a single
// record.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
}

// UserRegistry layers atomic find-or-create semantics over a UserStore,
// optionally enriching unseen actors with a full profile fetch. Frames are
// dispatched concurrently, so the registry is the single writer: the lock is
// held across the whole find/fetch/create sequence to keep two frames from
// racing into duplicate records for the same identifier.
type UserRegistry struct {
	store UserStore
	api   *API

	mu  sync.Mutex
	log zerolog.Logger
}

// NewUserRegistry creates a registry over the given store. api may be nil,
// in which case FindOrFetch degrades to FindOrCreate.
func NewUserRegistry(store UserStore, api *API, log zerolog.Logger) *UserRegistry {
	return &UserRegistry{
		store: store,
		api:   api,
		log:   log.With().Str("component", "user_registry").Logger(),
	}
}

// Find returns the actor record for id, or nil when unseen.
func (r *UserRegistry) Find(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Find(ctx, id)
}

// FindOrCreate returns the actor record for id, creating a bare record on
// first sight.
func (r *UserRegistry) FindOrCreate(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	return r.store.Create(ctx, &User{ID: id})
}

// FindOrFetch returns the actor record for id, fetching the full profile
// from the service on first sight. A failed fetch still yields a bare
// record: identity enrichment must not abort message dispatch.
func (r *UserRegistry) FindOrFetch(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	record := User{ID: id}
	if r.api != nil {
		fetched, err := r.api.UserInfo(ctx, id)
		if err != nil {
			r.log.Warn().Err(err).Str("user_id", id).Msg("Failed to fetch user profile")
		} else if fetched.ID != "" {
			record = fetched
		}
	}
	return r.store.Create(ctx, &record)
}

// Save upserts an actor record, used when change events arrive with fresh
// user or bot data.
func (r *UserRegistry) Save(ctx context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Create(ctx, user)
}

// ChannelRegistry is the process-wide conversation registry. It is purely
// local: conversation records arrive on channel lifecycle frames and are
// looked up during markup rewriting.
type ChannelRegistry struct {
	channels *exsync.Map[string, *Channel]
}

// NewChannelRegistry creates an empty conversation registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{channels: exsync.NewMap[string, *Channel]()}
}

// Get returns the conversation record for id.
func (r *ChannelRegistry) Get(id string) (*Channel, bool) {
	return r.channels.Get(id)
}

// GetOrCreate returns the conversation record for id, inserting a bare
// record if absent.
func (r *ChannelRegistry) GetOrCreate(id string) *Channel {
	ch, _ := r.channels.GetOrSet(id, &Channel{ID: id})
	return ch
}

// Upsert replaces the record for the channel's ID.
func (r *ChannelRegistry) Upsert(ch *Channel) {
	if ch == nil || ch.ID == "" {
		return
	}
	r.channels.Set(ch.ID, ch)
}

// Name returns the conversation's name, if known.
func (r *ChannelRegistry) Name(id string) (string, bool) {
	ch, ok := r.channels.Get(id)
	if !ok || ch.Name == "" {
		return "", false
	}
	return ch.Name, true
}
