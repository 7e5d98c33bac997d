package event

import (
	"strings"
	"sync"

	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/onebot"
	"github.com/sipeed/clawbot/pkg/utils"
)

// Event is what subscribers receive. Msg is non-nil only for message events.
type Event struct {
	Name string
	Raw  *onebot.RawEvent
	Msg  *message.Inbound
}

type Handler func(Event)

// Bus fans one raw event out under several derived names. Handlers run in
// their own goroutines so a slow subscriber never stalls the read loop, and
// a panicking subscriber is logged rather than propagated.
type Bus struct {
	prefixes []string

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus(prefixes []string) *Bus {
	return &Bus{
		prefixes: prefixes,
		handlers: make(map[string][]Handler),
	}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], h)
	b.mu.Unlock()
}

// Publish invokes every handler registered under name, fire-and-forget.
func (b *Bus) Publish(name string, evt Event) {
	evt.Name = name

	b.mu.RLock()
	hs := b.handlers[name]
	b.mu.RUnlock()

	for _, h := range hs {
		go b.invoke(h, evt)
	}
}

func (b *Bus) invoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Event handler panicked", map[string]interface{}{
				"event": evt.Name,
				"panic": r,
			})
		}
	}()
	h(evt)
}

// Dispatch derives every name a raw event answers to and publishes each.
// For a group message that starts with "/ping pong" and the prefix "/",
// that is: "*", "message", "message.normal", "message.group" and
// "message.command.ping".
func (b *Bus) Dispatch(raw *onebot.RawEvent, msg *message.Inbound) {
	evt := Event{Raw: raw, Msg: msg}

	b.Publish("*", evt)
	b.Publish(raw.PostType, evt)
	if sub := secondaryToken(raw); sub != "" {
		b.Publish(raw.PostType+"."+sub, evt)
	}

	if raw.PostType != "message" {
		return
	}
	if raw.MessageType != "" {
		b.Publish("message."+raw.MessageType, evt)
	}
	if msg != nil {
		if token := CommandToken(msg.Content(), b.prefixes); token != "" {
			b.Publish("message.command."+token, evt)
		}
	}
}

// secondaryToken picks the discriminator each event family carries: notices
// have a notice_type, requests a request_type, meta events a meta_event_type.
// Only message events use sub_type here.
func secondaryToken(raw *onebot.RawEvent) string {
	switch raw.PostType {
	case "notice":
		return raw.NoticeType
	case "request":
		return raw.RequestType
	case "meta_event":
		return raw.MetaEventType
	default:
		return raw.SubType
	}
}

// CommandToken strips at most one configured prefix and returns the first
// word of what remains, lower-cased. Without a matching prefix the first
// word is used as-is.
func CommandToken(content string, prefixes []string) string {
	rest, _ := utils.StripPrefix(content, prefixes)
	word, _ := utils.FirstWord(rest)
	return strings.ToLower(word)
}
