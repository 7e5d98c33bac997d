package message

import (
	"context"
	"fmt"

	"github.com/sipeed/clawbot/pkg/logger"
)

// Target addresses an outbound message explicitly. Exactly one of UserID or
// GroupID should be set; GroupID wins when both are.
type Target struct {
	UserID  int64
	GroupID int64
}

// TargetOf derives the reply target from an inbound message.
func TargetOf(m *Inbound) Target {
	if m.Kind == "group" {
		return Target{GroupID: m.GroupID}
	}
	return Target{UserID: m.SenderID}
}

// Builder composes an unsent multi-segment message. Building has no side
// effect; only Send and Reply perform I/O.
type Builder struct {
	store *Store
	segs  []Segment
}

// Compose starts a new outbound composition bound to this store's transport.
func (s *Store) Compose() *Builder {
	return &Builder{store: s}
}

func (b *Builder) Append(segs ...Segment) *Builder {
	b.segs = append(b.segs, segs...)
	return b
}

func (b *Builder) Text(text string) *Builder { return b.Append(Text(text)) }

func (b *Builder) Textf(format string, args ...any) *Builder {
	return b.Append(Text(fmt.Sprintf(format, args...)))
}

func (b *Builder) Image(file string) *Builder { return b.Append(Image(file)) }

func (b *Builder) At(userID int64) *Builder { return b.Append(At(userID)) }

func (b *Builder) Face(id string) *Builder { return b.Append(Face(id)) }

func (b *Builder) Record(file string) *Builder { return b.Append(Record(file)) }

func (b *Builder) Node(userID int64, nickname string, content []Segment) *Builder {
	return b.Append(Node(userID, nickname, content))
}

func (b *Builder) Empty() bool { return len(b.segs) == 0 }

// Send performs exactly one underlying send action and returns a hydrated
// entity for the message that was just sent, so it can be deleted or
// replied to in turn. Forwarded bundles go through their own batched action.
func (b *Builder) Send(ctx context.Context, target Target) (*Inbound, error) {
	if b.Empty() {
		return nil, fmt.Errorf("refusing to send an empty message")
	}

	var (
		action string
		params map[string]any
	)
	switch {
	case HasForwardNode(b.segs) && target.GroupID != 0:
		action = "send_group_forward_msg"
		params = map[string]any{"group_id": target.GroupID, "messages": b.segs}
	case HasForwardNode(b.segs):
		action = "send_private_forward_msg"
		params = map[string]any{"user_id": target.UserID, "messages": b.segs}
	case target.GroupID != 0:
		action = "send_msg"
		params = map[string]any{"message_type": "group", "group_id": target.GroupID, "message": b.segs}
	default:
		action = "send_msg"
		params = map[string]any{"message_type": "private", "user_id": target.UserID, "message": b.segs}
	}

	resp, err := b.store.tr.Action(ctx, action, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if rc := resp.Get("retcode").Int(); rc != 0 {
		return nil, fmt.Errorf("%s: retcode %d", action, rc)
	}

	id := resp.Get("data.message_id").String()
	if id == "" || id == "0" {
		return nil, fmt.Errorf("%s: response carries no message_id", action)
	}

	sent, err := b.store.FetchDetail(ctx, id)
	if err != nil {
		// The send succeeded; hand back a stub rather than failing the call.
		logger.WarnCF("message", "Sent message could not be hydrated", map[string]interface{}{
			"message_id": id,
			"error":      err.Error(),
		})
		return b.store.Resolve(Snapshot{ID: id}), nil
	}
	return sent, nil
}

// Reply sends the composition back at the source message with a
// reply-reference segment prepended. Forwarded bundles cannot carry a reply
// reference and degrade to a plain Send. The inbound->outbound relation is
// recorded for cascade recall.
func (b *Builder) Reply(ctx context.Context, src *Inbound) (*Inbound, error) {
	if src == nil {
		return nil, fmt.Errorf("reply without a source message")
	}

	if !HasForwardNode(b.segs) {
		b.segs = append([]Segment{Reply(src.ID)}, b.segs...)
	}

	sent, err := b.Send(ctx, TargetOf(src))
	if err != nil {
		return nil, err
	}
	if b.store.relations != nil {
		b.store.relations.AddRelation(src.ID, sent.ID)
	}
	return sent, nil
}
