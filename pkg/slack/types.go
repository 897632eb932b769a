// Copyright 2024-2026 Aiku AI

package slack

import "time"

// Envelope is a parsed Slack API response. The API is envelope-oriented:
// every response carries an "ok" boolean and, on failure, an "error" string.
// Keeping the raw shape lets the paginated driver merge arbitrary result
// fields without a type per endpoint.
type Envelope map[string]any

// OK reports the envelope's success flag.
func (e Envelope) OK() bool {
	ok, _ := e["ok"].(bool)
	return ok
}

// ErrorCode returns the envelope's error string, empty when absent.
func (e Envelope) ErrorCode() string {
	code, _ := e["error"].(string)
	return code
}

// NextCursor returns response_metadata.next_cursor, empty when absent.
func (e Envelope) NextCursor() string {
	meta, _ := e["response_metadata"].(map[string]any)
	if meta == nil {
		return ""
	}
	cursor, _ := meta["next_cursor"].(string)
	return cursor
}

// RetryAfter returns the server-advised retry delay for rate-limited
// responses, zero when absent.
func (e Envelope) RetryAfter() time.Duration {
	secs, ok := e["retry_after"].(float64)
	if !ok {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Slice returns the named field as a collection, nil when absent or not a
// collection.
func (e Envelope) Slice(field string) []any {
	items, _ := e[field].([]any)
	return items
}

// Map returns the named field as an object, nil when absent.
func (e Envelope) Map(field string) map[string]any {
	obj, _ := e[field].(map[string]any)
	return obj
}

// User is an actor record: a Slack user or bot identity. Metadata keeps the
// raw service payload for hosts that need fields beyond the names.
type User struct {
	ID          string
	Name        string
	MentionName string
	Metadata    map[string]any
}

// UserFromData builds a User from a raw Slack user or bot object. The display
// name prefers real_name; the mention name is the account name.
func UserFromData(data map[string]any) User {
	u := User{Metadata: data}
	u.ID, _ = data["id"].(string)
	u.MentionName, _ = data["name"].(string)
	if realName, _ := data["real_name"].(string); realName != "" {
		u.Name = realName
	} else {
		u.Name = u.MentionName
	}
	return u
}

// Channel is a local conversation record.
type Channel struct {
	ID       string
	Name     string
	Metadata map[string]any
}

// ChannelFromData builds a Channel from a raw Slack channel object.
func ChannelFromData(data map[string]any) Channel {
	c := Channel{Metadata: data}
	c.ID, _ = data["id"].(string)
	c.Name, _ = data["name"].(string)
	return c
}

// ConversationType discriminates the kinds of Slack conversation containers.
type ConversationType int

const (
	ConversationUnknown ConversationType = iota
	ConversationChannel
	ConversationGroup
	ConversationDirect
)

// Conversation is a resolved conversation reference.
type Conversation struct {
	ID   string
	Type ConversationType
}

// ParseConversation resolves a raw conversation identifier using the leading
// discriminant character convention: C for public channels, G for private
// groups and multi-party direct messages, D for direct messages.
func ParseConversation(id string) Conversation {
	conv := Conversation{ID: id}
	if id == "" {
		return conv
	}
	switch id[0] {
	case 'C':
		conv.Type = ConversationChannel
	case 'G':
		conv.Type = ConversationGroup
	case 'D':
		conv.Type = ConversationDirect
	}
	return conv
}

// IsPrivate reports whether the conversation is a direct message, which marks
// dispatched messages as command-style for the host bus.
func (c Conversation) IsPrivate() bool {
	return c.Type == ConversationDirect
}

// TeamData is the session descriptor produced by the rtm.start handshake.
// It is immutable after construction and replaced wholesale on reconnect,
// never mutated in place.
type TeamData struct {
	TeamID       string
	TeamName     string
	TeamDomain   string
	Self         User
	WebSocketURL string
}
