package command

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/sipeed/clawbot/pkg/event"
	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/utils"
)

// Descriptor registers one command. Exactly one of Trigger, Pattern or
// CatchAll should be set. Exact triggers match the leading token
// case-insensitively; patterns are tested against the whole remaining text;
// catch-all descriptors fire for every routed message and do their own
// matching.
type Descriptor struct {
	Feature     string
	Trigger     string
	Pattern     *regexp.Regexp
	CatchAll    bool
	Description string
	Usage       string
	NoAck       bool
	Handler     func(*Context) error
}

// Context carries one dispatch to a handler. Arg is the text after the
// matched token for exact triggers and the whole remaining text for
// catch-alls; Match holds the pattern's submatches when a Pattern fired.
type Context struct {
	Ctx   context.Context
	Event event.Event
	Msg   *message.Inbound
	Arg   string
	Match []string
}

type Router struct {
	prefixes   []string
	ackEmojiID string
	tr         message.Transport

	mu          sync.RWMutex
	descriptors []Descriptor
	triggers    map[string]string
}

func NewRouter(prefixes []string, ackEmojiID string, tr message.Transport) *Router {
	return &Router{
		prefixes:   prefixes,
		ackEmojiID: ackEmojiID,
		tr:         tr,
		triggers:   make(map[string]string),
	}
}

// SetTransport swaps the transport used for acknowledgements.
func (r *Router) SetTransport(tr message.Transport) {
	r.mu.Lock()
	r.tr = tr
	r.mu.Unlock()
}

func (r *Router) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Trigger != "" {
		key := strings.ToLower(d.Trigger)
		if prev, ok := r.triggers[key]; ok {
			logger.WarnCF("command", "Trigger registered more than once, all handlers will fire", map[string]interface{}{
				"trigger": key,
				"first":   prev,
				"second":  d.Feature,
			})
		} else {
			r.triggers[key] = d.Feature
		}
	}
	r.descriptors = append(r.descriptors, d)
}

// Descriptors returns a snapshot of everything registered, mainly for the
// help command.
func (r *Router) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Dispatch evaluates every descriptor against one message event. All
// matching descriptors fire; one feature matching never short-circuits the
// rest. A successful match acknowledges the source message unless every
// fired descriptor opted out.
func (r *Router) Dispatch(ctx context.Context, evt event.Event) {
	msg := evt.Msg
	if msg == nil {
		return
	}

	rest, _ := utils.StripPrefix(msg.Content(), r.prefixes)
	token, remainder := utils.FirstWord(rest)
	token = strings.ToLower(token)

	r.mu.RLock()
	descriptors := r.descriptors
	r.mu.RUnlock()

	ack := false
	for i := range descriptors {
		d := &descriptors[i]

		cctx := &Context{Ctx: ctx, Event: evt, Msg: msg}
		switch {
		case d.CatchAll:
			cctx.Arg = rest
		case d.Pattern != nil:
			m := d.Pattern.FindStringSubmatch(rest)
			if m == nil {
				continue
			}
			cctx.Match = m
			cctx.Arg = rest
		case d.Trigger != "":
			if token == "" || token != strings.ToLower(d.Trigger) {
				continue
			}
			cctx.Arg = remainder
		default:
			continue
		}

		if !d.NoAck {
			ack = true
		}
		r.run(d, cctx)
	}

	if ack {
		go r.acknowledge(msg.ID)
	}
}

func (r *Router) run(d *Descriptor, cctx *Context) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("command", "Handler panicked", map[string]interface{}{
				"feature": d.Feature,
				"group":   cctx.Msg.GroupID,
				"user":    cctx.Msg.SenderID,
				"panic":   rec,
			})
		}
	}()

	if err := d.Handler(cctx); err != nil {
		logger.ErrorCF("command", "Handler failed", map[string]interface{}{
			"feature": d.Feature,
			"group":   cctx.Msg.GroupID,
			"user":    cctx.Msg.SenderID,
			"error":   err.Error(),
		})
	}
}

// acknowledge reacts to the source message with the configured emoji.
// Failures are logged and otherwise ignored.
func (r *Router) acknowledge(messageID string) {
	r.mu.RLock()
	tr := r.tr
	r.mu.RUnlock()
	if tr == nil || r.ackEmojiID == "" {
		return
	}
	_, err := tr.Action(context.Background(), "set_msg_emoji_like", map[string]any{
		"message_id": messageID,
		"emoji_id":   r.ackEmojiID,
	})
	if err != nil {
		logger.DebugCF("command", "Acknowledgement failed", map[string]interface{}{
			"message_id": messageID,
			"error":      err.Error(),
		})
	}
}
