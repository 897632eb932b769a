// Copyright 2024-2026 Aiku AI

// Package bus defines the message-bus contract between the Slack adapter and
// the host automation framework. The adapter only ever calls into a Bus; it
// never implements one. Hosts plug in their own routing, command matching and
// persistence behind this interface.
package bus

// Source identifies where a message came from: the acting user and the
// conversation it was posted in.
type Source struct {
	// UserID is the stable Slack identifier of the sender.
	UserID string
	// UserName is the sender's display name, if known.
	UserName string
	// ChannelID is the raw conversation identifier (C…, G…, D…).
	ChannelID string
	// ThreadTS is the thread root timestamp when the message was posted in
	// a thread, empty otherwise.
	ThreadTS string
	// Private reports whether the conversation is a direct message.
	Private bool
}

// Message is a normalized inbound chat message handed to the host. The body
// has Slack markup rewritten to plain text and attachments flattened into
// trailing lines. Extensions carries raw service fields (timestamp, thread
// identifier, attachment payloads) for hosts that need them.
type Message struct {
	Text       string
	Source     Source
	Command    bool
	Extensions map[string]any
}

// Bus is the host framework surface the adapter drives. Receive delivers a
// normalized message for command routing; Trigger emits a named event with an
// arbitrary payload (connection lifecycle, reactions, edits, deletes).
//
// Implementations must be safe for concurrent use: frames are dispatched on
// independent goroutines and two calls may arrive at the same time.
type Bus interface {
	Receive(msg *Message)
	Trigger(event string, payload map[string]any)
}
