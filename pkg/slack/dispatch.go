// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiku/slack-rtm/pkg/bus"
	"github.com/aiku/slack-rtm/pkg/slack/slackfmt"
)

// systemUserID is the reserved service actor whose messages are never
// forwarded to the host.
const systemUserID = "USLACKBOT"

// supportedSubtypes gates which message subtypes reach the host. A message
// with no subtype is always forwarded.
var supportedSubtypes = map[string]bool{
	"me_message":      true,
	"message_changed": true,
	"message_deleted": true,
}

// Dispatcher classifies decoded frames and turns them into normalized
// messages or typed triggers on the host bus. It is safe for concurrent use:
// frames are handled on independent goroutines and only the registries are
// shared state.
type Dispatcher struct {
	api      *API
	bus      bus.Bus
	users    *UserRegistry
	channels *ChannelRegistry
	log      zerolog.Logger

	selfMu      sync.RWMutex
	selfID      string
	selfMention string
}

// NewDispatcher creates a dispatcher emitting onto the given bus.
func NewDispatcher(api *API, b bus.Bus, users *UserRegistry, channels *ChannelRegistry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		api:      api,
		bus:      b,
		users:    users,
		channels: channels,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// SetSelf records the adapter's own identity from the session descriptor.
// Called on every bootstrap, including reconnects.
func (d *Dispatcher) SetSelf(self User) {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()
	d.selfID = self.ID
	d.selfMention = self.MentionName
}

func (d *Dispatcher) self() (id, mention string) {
	d.selfMu.RLock()
	defer d.selfMu.RUnlock()
	return d.selfID, d.selfMention
}

// HandleFrame dispatches one decoded frame. It never returns an error: a
// malformed frame is logged and skipped, never allowed to abort the stream.
func (d *Dispatcher) HandleFrame(ctx context.Context, f *Frame) {
	switch f.Kind {
	case FrameHello:
		d.handleHello()
	case FrameMessage:
		d.handleMessage(ctx, f)
	case FrameReactionAdded, FrameReactionRemoved:
		d.handleReaction(ctx, f)
	case FrameUserChange, FrameTeamJoin:
		d.handleUserChange(ctx, f.UserData)
	case FrameBotAdded, FrameBotChanged:
		d.handleUserChange(ctx, f.BotData)
	case FrameChannelCreated, FrameChannelRename, FrameGroupRename:
		d.handleChannelChange(f)
	case FrameError:
		d.handleError(f)
	default:
		d.handleUnknown(f)
	}
}

func (d *Dispatcher) handleHello() {
	d.log.Info().Msg("Connected to Slack")
	d.bus.Trigger("connected", nil)
}

func (d *Dispatcher) handleMessage(ctx context.Context, f *Frame) {
	if f.Subtype != "" && !supportedSubtypes[f.Subtype] {
		return
	}
	if f.UserID == systemUserID {
		return
	}
	selfID, _ := d.self()
	if f.UserID == selfID {
		return
	}

	user, err := d.users.FindOrFetch(ctx, f.UserID)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", f.UserID).Msg("Failed to resolve message sender")
		user = &User{ID: f.UserID}
	}

	switch f.Subtype {
	case "message_deleted":
		delete(f.Raw, "previous_message")
		delete(f.Raw, "blocks")
		d.bus.Trigger("message_deleted", f.Raw)
	case "message_changed":
		delete(f.Raw, "previous_message")
		d.bus.Trigger("message_changed", f.Raw)
	default:
		d.dispatchMessage(ctx, user, f)
	}
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, user *User, f *Frame) {
	conv := ParseConversation(f.Channel)

	extensions := map[string]any{
		"timestamp":   f.TS,
		"attachments": f.Raw["attachments"],
	}
	if f.ThreadTS != "" {
		extensions["thread_ts"] = f.ThreadTS
	}

	msg := &bus.Message{
		Text: d.normalizeBody(ctx, f),
		Source: bus.Source{
			UserID:    user.ID,
			UserName:  user.Name,
			ChannelID: f.Channel,
			ThreadTS:  f.ThreadTS,
			Private:   conv.IsPrivate(),
		},
		Command:    conv.IsPrivate(),
		Extensions: extensions,
	}

	d.log.Debug().Str("user_id", user.ID).Str("channel", f.Channel).Msg("Dispatching message to host")
	d.bus.Receive(msg)
}

// normalizeBody rewrites the message text and flattens attachments into
// trailing lines.
func (d *Dispatcher) normalizeBody(ctx context.Context, f *Frame) string {
	var lines []string

	if _, hasText := f.Raw["text"]; hasText {
		text := d.rewriteSelfMention(f.Text)
		text = slackfmt.Rewrite(text, d.lookup(ctx))
		lines = append(lines, text)
	}
	for _, att := range f.Attachments {
		lines = append(lines, slackfmt.FlattenAttachment(att)...)
	}
	return strings.Join(lines, "\n")
}

// rewriteSelfMention replaces a leading raw mention of the adapter's own
// identifier with the bot's mention form, so host command routing sees
// "@botname …".
func (d *Dispatcher) rewriteSelfMention(text string) string {
	selfID, selfMention := d.self()
	if selfID == "" {
		return text
	}
	trimmed := strings.TrimLeft(text, " \t\n")
	token := "<@" + selfID + ">"
	if !strings.HasPrefix(trimmed, token) {
		return text
	}
	return "@" + selfMention + trimmed[len(token):]
}

func (d *Dispatcher) lookup(ctx context.Context) slackfmt.Lookup {
	return slackfmt.Lookup{
		UserMention: func(id string) (string, bool) {
			user, err := d.users.Find(ctx, id)
			if err != nil || user == nil || user.MentionName == "" {
				return "", false
			}
			return user.MentionName, true
		},
		ChannelName: func(id string) (string, bool) {
			return d.channels.Name(id)
		},
	}
}

func (d *Dispatcher) handleReaction(ctx context.Context, f *Frame) {
	d.log.Debug().Str("type", f.Type).Msg("Reaction event received")

	user, err := d.users.FindOrCreate(ctx, f.UserID)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", f.UserID).Msg("Failed to resolve reacting user")
		return
	}

	// Reactions from self still resolve the actor but are not forwarded.
	selfID, _ := d.self()
	if f.UserID == selfID {
		return
	}

	var itemUser *User
	if f.ItemUserID != "" {
		itemUser, err = d.users.FindOrCreate(ctx, f.ItemUserID)
		if err != nil {
			d.log.Warn().Err(err).Str("user_id", f.ItemUserID).Msg("Failed to resolve reaction target user")
		}
	}

	d.bus.Trigger("slack_"+f.Type, map[string]any{
		"user":      user,
		"name":      f.Reaction,
		"item_user": itemUser,
		"item":      f.Item,
		"event_ts":  f.EventTS,
	})
}

func (d *Dispatcher) handleUserChange(ctx context.Context, data map[string]any) {
	user := UserFromData(data)
	if user.ID == "" {
		d.log.Debug().Msg("User change frame without user data, skipping")
		return
	}
	d.log.Debug().Str("user_id", user.ID).Msg("Updating user data")
	if _, err := d.users.Save(ctx, &user); err != nil {
		d.log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to save user data")
	}
}

func (d *Dispatcher) handleChannelChange(f *Frame) {
	channel := ChannelFromData(f.ChannelData)
	if channel.ID == "" {
		d.log.Debug().Msg("Channel change frame without channel data, skipping")
		return
	}
	d.log.Debug().Str("channel_id", channel.ID).Msg("Updating channel data")
	d.channels.Upsert(&channel)
}

func (d *Dispatcher) handleError(f *Frame) {
	code := f.ErrorData["code"]
	msg, _ := f.ErrorData["msg"].(string)
	d.log.Error().Any("code", code).Str("msg", msg).Msg("Error received from Slack")
}

func (d *Dispatcher) handleUnknown(f *Frame) {
	if f.ReplyTo {
		return
	}
	d.log.Debug().Str("type", f.Type).Msg("Event received from Slack and will be ignored")
}
