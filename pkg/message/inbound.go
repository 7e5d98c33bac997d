package message

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// Transport is the action-call surface of the protocol client. The returned
// result is the whole response object ({status, retcode, data, ...}); a
// non-zero retcode is the caller's problem, only network/write failures
// surface as errors.
type Transport interface {
	Action(ctx context.Context, action string, params any) (gjson.Result, error)
}

// Inbound is the canonical view of one inbound chat message. At most one
// instance exists per message id process-wide; get it from Store.Resolve or
// Store.FetchDetail, never construct it directly.
type Inbound struct {
	ID       string
	Kind     string // "private" or "group"
	SenderID int64
	GroupID  int64 // 0 for private chats
	Time     int64
	RawText  string
	Segments []Segment

	hydrated bool
	store    *Store
}

// Snapshot carries the fields of a message as observed in one event or
// detail fetch. Zero-value fields are treated as unknown.
type Snapshot struct {
	ID       string
	Kind     string
	SenderID int64
	GroupID  int64
	Time     int64
	RawText  string
	Segments []Segment
}

// Content returns the concatenated text segments, trimmed.
func (m *Inbound) Content() string {
	return PlainText(m.Segments)
}

// Hydrated reports whether the entity has been populated with full detail.
func (m *Inbound) Hydrated() bool {
	if m.store != nil {
		m.store.mu.Lock()
		defer m.store.mu.Unlock()
	}
	return m.hydrated
}

// ReplyTarget returns the id referenced by this message's reply segment,
// or "" when the message is not a reply.
func (m *Inbound) ReplyTarget() string {
	return FirstReplyID(m.Segments)
}

// Delete recalls the message. Works for the bot's own messages and, with
// sufficient privileges, for others'.
func (m *Inbound) Delete(ctx context.Context) error {
	if m.store == nil {
		return fmt.Errorf("message %s is not attached to a store", m.ID)
	}
	resp, err := m.store.tr.Action(ctx, "delete_msg", map[string]any{"message_id": m.ID})
	if err != nil {
		return fmt.Errorf("delete_msg %s: %w", m.ID, err)
	}
	if rc := resp.Get("retcode").Int(); rc != 0 {
		return fmt.Errorf("delete_msg %s: retcode %d", m.ID, rc)
	}
	return nil
}

// fill copies snapshot fields in. Already-hydrated entities are never
// overwritten; a partially known stub takes whatever the snapshot has.
func (m *Inbound) fill(snap Snapshot) {
	if m.hydrated {
		return
	}
	if snap.Kind != "" {
		m.Kind = snap.Kind
	}
	if snap.SenderID != 0 {
		m.SenderID = snap.SenderID
	}
	if snap.GroupID != 0 {
		m.GroupID = snap.GroupID
	}
	if snap.Time != 0 {
		m.Time = snap.Time
	}
	if snap.RawText != "" {
		m.RawText = snap.RawText
	}
	if len(snap.Segments) > 0 {
		m.Segments = snap.Segments
	}
	// A snapshot that knows the message kind came from a real event or a
	// detail fetch; that is as hydrated as this entity will get.
	if snap.Kind != "" {
		m.hydrated = true
	}
}
