// Copyright 2024-2026 Aiku AI

// Package slackfmt rewrites Slack message markup into plain text. Slack
// encloses structured references in angle brackets — <@U123>, <#C1|general>,
// <!channel>, <https://example.com|label> — and HTML-escapes literal angle
// brackets and ampersands. Rewriting replaces the references with readable
// text and then unescapes the entities.
package slackfmt

import "strings"

// Lookup resolves identifiers against the adapter's registries. Either
// function may be nil; unresolved references fall back to the raw identifier.
type Lookup struct {
	// UserMention returns the mention name for a user ID.
	UserMention func(id string) (string, bool)
	// ChannelName returns the name for a conversation ID.
	ChannelName func(id string) (string, bool)
}

// broadcastKeywords are the only <!…> references that survive rewriting.
var broadcastKeywords = map[string]bool{
	"channel":  true,
	"group":    true,
	"everyone": true,
}

var entityReplacer = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// Rewrite replaces markup references in text and unescapes HTML entities.
// The token grammar is: '<', optional one-character discriminant (@ # !),
// link (no '>' or '|'), optional '|' label (no '>'), '>'. Anything that does
// not parse as a token passes through untouched.
func Rewrite(text string, lk Lookup) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] != '<' {
			b.WriteByte(text[i])
			i++
			continue
		}
		replacement, end, ok := rewriteToken(text, i, lk)
		if !ok {
			b.WriteByte('<')
			i++
			continue
		}
		b.WriteString(replacement)
		i = end
	}
	return entityReplacer.Replace(b.String())
}

// rewriteToken parses one markup token starting at the '<' at position start
// and returns its replacement and the position just past the closing '>'.
func rewriteToken(s string, start int, lk Lookup) (replacement string, end int, ok bool) {
	i := start + 1

	var disc byte
	if i < len(s) && (s[i] == '@' || s[i] == '#' || s[i] == '!') {
		disc = s[i]
		i++
	}

	linkStart := i
	for i < len(s) && s[i] != '>' && s[i] != '|' {
		i++
	}
	if i >= len(s) || i == linkStart {
		return "", 0, false
	}
	link := s[linkStart:i]

	var label string
	if s[i] == '|' {
		i++
		labelStart := i
		for i < len(s) && s[i] != '>' {
			i++
		}
		if i >= len(s) || i == labelStart {
			return "", 0, false
		}
		label = s[labelStart:i]
	}
	end = i + 1

	switch disc {
	case '@':
		if label != "" {
			return label, end, true
		}
		if lk.UserMention != nil {
			if mention, found := lk.UserMention(link); found {
				return "@" + mention, end, true
			}
		}
		return "@" + link, end, true
	case '#':
		if label != "" {
			return label, end, true
		}
		if lk.ChannelName != nil {
			if name, found := lk.ChannelName(link); found {
				return "#" + name, end, true
			}
		}
		return "#" + link, end, true
	case '!':
		if broadcastKeywords[link] {
			return "@" + link, end, true
		}
		return "", end, true
	default:
		link = strings.TrimPrefix(link, "mailto:")
		if label != "" && !strings.Contains(link, label) {
			return label + " (" + link + ")", end, true
		}
		if label == "" {
			return link, end, true
		}
		return label, end, true
	}
}

// FlattenAttachment renders a raw attachment payload as plain-text lines:
// pretext, title, text (falling back to the fallback field), then each
// field's title and value. Lines are trimmed and empty ones dropped.
func FlattenAttachment(att map[string]any) []string {
	var lines []string
	push := func(v any) {
		s, _ := v.(string)
		s = strings.TrimSpace(s)
		if s != "" {
			lines = append(lines, s)
		}
	}

	push(att["pretext"])
	push(att["title"])
	if text, ok := att["text"]; ok {
		push(text)
	} else {
		push(att["fallback"])
	}
	if fields, ok := att["fields"].([]any); ok {
		for _, field := range fields {
			if obj, ok := field.(map[string]any); ok {
				push(obj["title"])
				push(obj["value"])
			}
		}
	}
	return lines
}
