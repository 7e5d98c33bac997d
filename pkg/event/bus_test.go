package event

import (
	"sync"
	"testing"
	"time"

	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/onebot"
)

type firedSet struct {
	mu    sync.Mutex
	names []string
}

func (f *firedSet) record(name string) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
}

func (f *firedSet) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func groupMessageEvent(text string) (*onebot.RawEvent, *message.Inbound) {
	raw := &onebot.RawEvent{
		PostType:    "message",
		MessageType: "group",
		SubType:     "normal",
		MessageID:   "m1",
		UserID:      7,
		GroupID:     42,
		RawMessage:  text,
	}
	store := message.NewStore(nil)
	msg := store.Resolve(message.Snapshot{
		ID:       "m1",
		Kind:     "group",
		SenderID: 7,
		GroupID:  42,
		RawText:  text,
		Segments: []message.Segment{message.Text(text)},
	})
	return raw, msg
}

func TestDispatch_DerivedNames(t *testing.T) {
	b := NewBus([]string{"/"})
	fired := &firedSet{}
	for _, name := range []string{"*", "message", "message.normal", "message.group", "message.command.ping"} {
		name := name
		b.Subscribe(name, func(evt Event) {
			if evt.Name != name {
				t.Errorf("handler for %q saw event name %q", name, evt.Name)
			}
			fired.record(name)
		})
	}

	b.Dispatch(groupMessageEvent("/ping pong"))

	waitFor(t, func() bool {
		return fired.has("*") && fired.has("message") && fired.has("message.normal") &&
			fired.has("message.group") && fired.has("message.command.ping")
	})
}

func TestDispatch_NoticeSkipsMessageNames(t *testing.T) {
	b := NewBus([]string{"/"})
	fired := &firedSet{}
	b.Subscribe("notice.group_recall", func(Event) { fired.record("notice.group_recall") })
	b.Subscribe("message", func(Event) { fired.record("message") })

	// Recall notices carry notice_type only, never sub_type.
	b.Dispatch(&onebot.RawEvent{PostType: "notice", NoticeType: "group_recall"}, nil)

	waitFor(t, func() bool { return fired.has("notice.group_recall") })
	if fired.has("message") {
		t.Fatal("notice event reached a message subscriber")
	}
}

func TestDispatch_SecondaryNamePerFamily(t *testing.T) {
	frames := []struct {
		payload string
		want    string
	}{
		{`{"post_type":"notice","notice_type":"group_recall","group_id":42,"user_id":7,"operator_id":7,"message_id":101,"time":1700000000}`,
			"notice.group_recall"},
		{`{"post_type":"notice","notice_type":"friend_recall","user_id":7,"message_id":102,"time":1700000000}`,
			"notice.friend_recall"},
		{`{"post_type":"notice","notice_type":"group_increase","sub_type":"approve","group_id":42,"user_id":8,"time":1700000000}`,
			"notice.group_increase"},
		{`{"post_type":"request","request_type":"friend","user_id":9,"time":1700000000}`,
			"request.friend"},
		{`{"post_type":"meta_event","meta_event_type":"heartbeat","time":1700000000}`,
			"meta_event.heartbeat"},
	}

	for _, f := range frames {
		raw, err := onebot.DecodeEvent([]byte(f.payload))
		if err != nil {
			t.Fatalf("DecodeEvent(%s): %v", f.payload, err)
		}

		b := NewBus(nil)
		fired := &firedSet{}
		b.Subscribe(f.want, func(Event) { fired.record(f.want) })
		b.Dispatch(raw, nil)

		waitFor(t, func() bool { return fired.has(f.want) })
	}
}

func TestPublish_PanicDoesNotStopSiblings(t *testing.T) {
	b := NewBus(nil)
	fired := &firedSet{}
	b.Subscribe("x", func(Event) { panic("boom") })
	b.Subscribe("x", func(Event) { fired.record("survivor") })

	b.Publish("x", Event{})

	waitFor(t, func() bool { return fired.has("survivor") })
}

func TestCommandToken(t *testing.T) {
	tests := []struct {
		content  string
		prefixes []string
		want     string
	}{
		{"/ping pong", []string{"/"}, "ping"},
		{"PING", []string{"/"}, "ping"},
		{"!r2d6", []string{"/", "!"}, "r2d6"},
		{"//ping", []string{"/"}, "/ping"},
		{"   ", []string{"/"}, ""},
		{"", nil, ""},
	}
	for _, tt := range tests {
		if got := CommandToken(tt.content, tt.prefixes); got != tt.want {
			t.Fatalf("CommandToken(%q, %v) = %q, want %q", tt.content, tt.prefixes, got, tt.want)
		}
	}
}
