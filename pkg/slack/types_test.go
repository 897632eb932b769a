// Copyright 2024-2026 Aiku AI

package slack

import (
	"testing"
	"time"
)

// TestEnvelopeHelpers checks the typed accessors over raw envelopes.
func TestEnvelopeHelpers(t *testing.T) {
	t.Parallel()

	env := Envelope{
		"ok":                true,
		"retry_after":       1.5,
		"members":           []any{"a"},
		"team":              map[string]any{"id": "T1"},
		"response_metadata": map[string]any{"next_cursor": "c2"},
	}
	if !env.OK() || env.ErrorCode() != "" {
		t.Errorf("unexpected status accessors: %v %q", env.OK(), env.ErrorCode())
	}
	if env.NextCursor() != "c2" {
		t.Errorf("expected cursor c2, got %q", env.NextCursor())
	}
	if env.RetryAfter() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s retry delay, got %s", env.RetryAfter())
	}
	if len(env.Slice("members")) != 1 || env.Map("team")["id"] != "T1" {
		t.Errorf("unexpected collection accessors")
	}

	empty := Envelope{}
	if empty.OK() || empty.NextCursor() != "" || empty.RetryAfter() != 0 {
		t.Errorf("expected zero values from an empty envelope")
	}
	if empty.Slice("members") != nil || empty.Map("team") != nil {
		t.Errorf("expected nil collections from an empty envelope")
	}
}

// TestUserFromData checks the display-name preference and mention mapping.
func TestUserFromData(t *testing.T) {
	t.Parallel()

	u := UserFromData(map[string]any{"id": "U1", "name": "alice", "real_name": "Alice A"})
	if u.ID != "U1" || u.MentionName != "alice" || u.Name != "Alice A" {
		t.Errorf("unexpected user: %+v", u)
	}

	u = UserFromData(map[string]any{"id": "B1", "name": "builder"})
	if u.Name != "builder" {
		t.Errorf("expected the account name fallback, got %q", u.Name)
	}
}

// TestParseConversation checks the leading-discriminant convention.
func TestParseConversation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		id      string
		want    ConversationType
		private bool
	}{
		{"C024BE91L", ConversationChannel, false},
		{"G1234567", ConversationGroup, false},
		{"D5678901", ConversationDirect, true},
		{"X0000000", ConversationUnknown, false},
		{"", ConversationUnknown, false},
	}
	for _, tc := range cases {
		conv := ParseConversation(tc.id)
		if conv.Type != tc.want {
			t.Errorf("ParseConversation(%q).Type = %d, want %d", tc.id, conv.Type, tc.want)
		}
		if conv.IsPrivate() != tc.private {
			t.Errorf("ParseConversation(%q).IsPrivate() = %v, want %v", tc.id, conv.IsPrivate(), tc.private)
		}
	}
}
