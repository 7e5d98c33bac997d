// Package message holds the message entity model: typed segments, the
// inbound message identity cache, and the outbound composition builder.
package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one typed unit of a composite chat message, in OneBot array
// form: {"type": "...", "data": {...}}. Data values are usually strings but
// the protocol also delivers numbers and, for forward nodes, nested segment
// arrays, so the map stays loosely typed.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Get returns a data field coerced to string. Numbers are formatted without
// a trailing ".0" so at/reply ids survive the float64 round-trip.
func (s Segment) Get(key string) string {
	if s.Data == nil {
		return ""
	}
	v, ok := s.Data[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func Text(text string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": text}}
}

func Image(file string) Segment {
	return Segment{Type: "image", Data: map[string]any{"file": file}}
}

func At(userID int64) Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": strconv.FormatInt(userID, 10)}}
}

func AtAll() Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": "all"}}
}

func Reply(messageID string) Segment {
	return Segment{Type: "reply", Data: map[string]any{"id": messageID}}
}

func Face(id string) Segment {
	return Segment{Type: "face", Data: map[string]any{"id": id}}
}

func Record(file string) Segment {
	return Segment{Type: "record", Data: map[string]any{"file": file}}
}

func Video(file string) Segment {
	return Segment{Type: "video", Data: map[string]any{"file": file}}
}

// Node builds one forwarded-bundle node. Content is a nested segment list.
func Node(userID int64, nickname string, content []Segment) Segment {
	return Segment{Type: "node", Data: map[string]any{
		"user_id":  strconv.FormatInt(userID, 10),
		"nickname": nickname,
		"content":  content,
	}}
}

// PlainText concatenates the text segments only, trimmed.
func PlainText(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Type == "text" {
			b.WriteString(s.Get("text"))
		}
	}
	return strings.TrimSpace(b.String())
}

// HasForwardNode reports whether the segments form a forwarded bundle,
// which must be sent through the batched forward action.
func HasForwardNode(segs []Segment) bool {
	for _, s := range segs {
		if s.Type == "node" {
			return true
		}
	}
	return false
}

// FirstReplyID returns the id of the first reply-reference segment, or "".
func FirstReplyID(segs []Segment) string {
	for _, s := range segs {
		if s.Type == "reply" {
			return s.Get("id")
		}
	}
	return ""
}

// MentionedIDs returns the qq values of all at segments.
func MentionedIDs(segs []Segment) []string {
	var ids []string
	for _, s := range segs {
		if s.Type == "at" {
			if id := s.Get("qq"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
