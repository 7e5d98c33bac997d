package message

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

type fakeCall struct {
	action string
	params map[string]any
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []fakeCall
	handler func(action string, params map[string]any) (string, error)
}

func (f *fakeTransport) Action(_ context.Context, action string, params any) (gjson.Result, error) {
	p, _ := params.(map[string]any)
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{action: action, params: p})
	f.mu.Unlock()

	if f.handler != nil {
		body, err := f.handler(action, p)
		if err != nil {
			return gjson.Result{}, err
		}
		return gjson.Parse(body), nil
	}
	return gjson.Parse(`{"status":"ok","retcode":0,"data":null}`), nil
}

func (f *fakeTransport) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.action == action {
			n++
		}
	}
	return n
}

func groupSnapshot(id string) Snapshot {
	return Snapshot{
		ID:       id,
		Kind:     "group",
		SenderID: 7,
		GroupID:  42,
		Time:     1700000000,
		RawText:  "hello",
		Segments: []Segment{Text("hello")},
	}
}

func TestResolve_SameEntityForSameID(t *testing.T) {
	s := NewStore(&fakeTransport{})

	first := s.Resolve(groupSnapshot("m1"))
	second := s.Resolve(groupSnapshot("m1"))

	if first != second {
		t.Fatal("expected reference-identical entities for the same id")
	}
	if s.Len() != 1 {
		t.Fatalf("cache size = %d, want 1", s.Len())
	}
}

func TestResolve_HydratedFieldsNotOverwritten(t *testing.T) {
	s := NewStore(&fakeTransport{})

	m := s.Resolve(groupSnapshot("m1"))

	// A later raw payload for the same id must not clobber hydrated fields.
	changed := groupSnapshot("m1")
	changed.SenderID = 999
	changed.RawText = "rewritten"
	s.Resolve(changed)

	if m.SenderID != 7 || m.RawText != "hello" {
		t.Fatalf("hydrated entity was overwritten: sender=%d raw=%q", m.SenderID, m.RawText)
	}
}

func TestFetchDetail_HydratesStubOnce(t *testing.T) {
	tr := &fakeTransport{handler: func(action string, params map[string]any) (string, error) {
		if action != "get_msg" {
			return "", fmt.Errorf("unexpected action %s", action)
		}
		return `{"status":"ok","retcode":0,"data":{
			"message_id":"m2","message_type":"group","group_id":42,"time":1700000001,
			"sender":{"user_id":8},"raw_message":"fetched",
			"message":[{"type":"text","data":{"text":"fetched"}}]}}`, nil
	}}
	s := NewStore(tr)

	// Known only by id (e.g. from a reply segment).
	stub := s.Resolve(Snapshot{ID: "m2"})
	if stub.Hydrated() {
		t.Fatal("stub must not start hydrated")
	}

	m, err := s.FetchDetail(context.Background(), "m2")
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if m != stub {
		t.Fatal("FetchDetail must return the cached entity")
	}
	if !m.Hydrated() || m.Content() != "fetched" || m.SenderID != 8 {
		t.Fatalf("entity not hydrated from detail: %+v", m)
	}

	if _, err := s.FetchDetail(context.Background(), "m2"); err != nil {
		t.Fatalf("second FetchDetail: %v", err)
	}
	if n := tr.callCount("get_msg"); n != 1 {
		t.Fatalf("get_msg called %d times, want 1 (hydration is idempotent)", n)
	}
}

func TestSweep_EvictsOnlyStaleEntries(t *testing.T) {
	s := NewStore(&fakeTransport{})
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	s.Resolve(groupSnapshot("old"))

	now = now.Add(30 * time.Minute)
	s.Resolve(groupSnapshot("fresh"))

	// "old" is 30 minutes stale, inside retention; nothing goes.
	if n := s.sweepOnce(); n != 0 {
		t.Fatalf("sweep evicted %d before retention elapsed", n)
	}

	now = now.Add(45 * time.Minute)
	if n := s.sweepOnce(); n != 1 {
		t.Fatalf("sweep evicted %d, want 1", n)
	}
	if _, ok := s.Lookup("old"); ok {
		t.Fatal("stale entry survived the sweep")
	}
	if _, ok := s.Lookup("fresh"); !ok {
		t.Fatal("fresh entry was evicted")
	}
}

func TestResolve_TouchRefreshesRetention(t *testing.T) {
	s := NewStore(&fakeTransport{})
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	s.Resolve(groupSnapshot("m1"))

	now = now.Add(50 * time.Minute)
	s.Resolve(Snapshot{ID: "m1"}) // observed again: touch refreshes

	now = now.Add(50 * time.Minute)
	if n := s.sweepOnce(); n != 0 {
		t.Fatalf("recently touched entry was evicted (n=%d)", n)
	}
}
