// Copyright 2024-2026 Aiku AI

package slack

import "encoding/json"

// FrameKind is the closed set of recognized streaming event kinds. Anything
// outside the set decodes as FrameUnknown rather than failing; a malformed
// frame must never abort the stream.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameHello
	FrameMessage
	FrameReactionAdded
	FrameReactionRemoved
	FrameUserChange
	FrameTeamJoin
	FrameBotAdded
	FrameBotChanged
	FrameChannelCreated
	FrameChannelRename
	FrameGroupRename
	FrameError
)

var frameKinds = map[string]FrameKind{
	"hello":            FrameHello,
	"message":          FrameMessage,
	"reaction_added":   FrameReactionAdded,
	"reaction_removed": FrameReactionRemoved,
	"user_change":      FrameUserChange,
	"team_join":        FrameTeamJoin,
	"bot_added":        FrameBotAdded,
	"bot_changed":      FrameBotChanged,
	"channel_created":  FrameChannelCreated,
	"channel_rename":   FrameChannelRename,
	"group_rename":     FrameGroupRename,
	"error":            FrameError,
}

// Frame is one decoded streaming event. Fields are populated according to
// the kind; Raw always holds the full payload for extension data and trigger
// forwarding. The "user" and "channel" wire fields are strings on some kinds
// and objects on others, which is why both spellings exist here.
type Frame struct {
	Kind    FrameKind
	Type    string
	Subtype string

	UserID     string
	Channel    string
	Text       string
	TS         string
	ThreadTS   string
	EventTS    string
	Reaction   string
	ItemUserID string
	Item       map[string]any

	Attachments []map[string]any
	UserData    map[string]any
	BotData     map[string]any
	ChannelData map[string]any
	ErrorData   map[string]any

	// ReplyTo marks frames carrying a reply correlation marker: server
	// acknowledgements of our own sends, silently ignored by the dispatcher.
	ReplyTo bool

	Raw map[string]any
}

// DecodeFrame decodes a raw streaming frame at the ingestion boundary.
// Unrecognized kinds decode successfully as FrameUnknown; only malformed
// JSON is an error.
func DecodeFrame(data []byte) (*Frame, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	f := &Frame{Raw: raw}
	f.Type, _ = raw["type"].(string)
	f.Kind = frameKinds[f.Type]
	f.Subtype, _ = raw["subtype"].(string)
	_, f.ReplyTo = raw["reply_to"]

	f.UserID, _ = raw["user"].(string)
	f.Channel, _ = raw["channel"].(string)
	f.Text, _ = raw["text"].(string)
	f.TS, _ = raw["ts"].(string)
	f.ThreadTS, _ = raw["thread_ts"].(string)
	f.EventTS, _ = raw["event_ts"].(string)
	f.Reaction, _ = raw["reaction"].(string)
	f.ItemUserID, _ = raw["item_user"].(string)
	f.Item, _ = raw["item"].(map[string]any)

	if atts, ok := raw["attachments"].([]any); ok {
		for _, att := range atts {
			if obj, ok := att.(map[string]any); ok {
				f.Attachments = append(f.Attachments, obj)
			}
		}
	}

	switch f.Kind {
	case FrameUserChange, FrameTeamJoin:
		f.UserData, _ = raw["user"].(map[string]any)
	case FrameBotAdded, FrameBotChanged:
		f.BotData, _ = raw["bot"].(map[string]any)
	case FrameChannelCreated, FrameChannelRename, FrameGroupRename:
		f.ChannelData, _ = raw["channel"].(map[string]any)
	case FrameError:
		f.ErrorData, _ = raw["error"].(map[string]any)
	}

	return f, nil
}
