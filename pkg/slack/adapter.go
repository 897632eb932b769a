// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/aiku/slack-rtm/pkg/bus"
)

// Adapter wires the REST client, the streaming connection and the dispatcher
// together behind the small surface a host framework drives: run the
// connection, send text or attachments, shut down.
type Adapter struct {
	cfg        *Config
	api        *API
	bus        bus.Bus
	users      *UserRegistry
	channels   *ChannelRegistry
	dispatcher *Dispatcher
	conn       *Conn
	registry   *HandleRegistry
	log        zerolog.Logger
}

// NewAdapter creates an adapter emitting onto b, with actor records kept in
// store. The config is validated and defaulted here.
func NewAdapter(cfg *Config, b bus.Bus, store UserStore, log zerolog.Logger) (*Adapter, error) {
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}

	api := NewAPI(cfg, log)
	users := NewUserRegistry(store, api, log)
	channels := NewChannelRegistry()
	dispatcher := NewDispatcher(api, b, users, channels, log)
	registry := NewHandleRegistry()

	conn := NewConn(cfg, api, dispatcher, registry, log)
	conn.OnSession = func(team *TeamData) {
		dispatcher.SetSelf(team.Self)
	}

	return &Adapter{
		cfg:        cfg,
		api:        api,
		bus:        b,
		users:      users,
		channels:   channels,
		dispatcher: dispatcher,
		conn:       conn,
		registry:   registry,
		log:        log.With().Str("component", "adapter").Logger(),
	}, nil
}

// Run bootstraps and opens the streaming connection. It returns once
// connected; the event loop runs until Shutdown or a terminal close,
// observable via Done.
func (a *Adapter) Run(ctx context.Context) error {
	return a.conn.Run(ctx)
}

// SendMessages sends each message as its own streaming frame to the target
// conversation, in order.
func (a *Adapter) SendMessages(target string, messages ...string) error {
	for _, msg := range messages {
		if err := a.conn.SendMessage(target, msg); err != nil {
			return fmt.Errorf("failed to send to %s: %w", target, err)
		}
	}
	return nil
}

// SendDirectMessages opens (or resumes) a direct-message conversation with
// the user and sends each message there.
func (a *Adapter) SendDirectMessages(ctx context.Context, userID string, messages ...string) error {
	channelID, err := a.api.IMOpen(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return a.SendMessages(channelID, messages...)
}

// PostMessage posts text via the REST API, carrying the configured
// formatting flags. Use this instead of SendMessages when formatting
// options matter.
func (a *Adapter) PostMessage(ctx context.Context, target, text string, extra url.Values) error {
	_, err := a.api.PostMessage(ctx, target, text, extra)
	return err
}

// SendAttachments posts pre-serialized rich attachments to the target.
func (a *Adapter) SendAttachments(ctx context.Context, target, attachmentsJSON string) error {
	_, err := a.api.SendAttachments(ctx, target, attachmentsJSON)
	return err
}

// SetTopic sets a channel topic.
func (a *Adapter) SetTopic(ctx context.Context, target, topic string) error {
	_, err := a.api.SetTopic(ctx, target, topic)
	return err
}

// API exposes the underlying REST client for host extensions.
func (a *Adapter) API() *API {
	return a.api
}

// Handles returns the active streaming handles.
func (a *Adapter) Handles() []*Handle {
	return a.registry.Handles()
}

// Done is closed when the event-processing runtime has stopped.
func (a *Adapter) Done() <-chan struct{} {
	return a.conn.Done()
}

// Err reports the error that terminated the connection, if any.
func (a *Adapter) Err() error {
	return a.conn.Err()
}

// Shutdown gracefully closes the streaming connection and stops the runtime.
func (a *Adapter) Shutdown() {
	a.conn.Shutdown()
}
