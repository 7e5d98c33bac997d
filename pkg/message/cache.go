package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sipeed/clawbot/pkg/logger"
)

const (
	// Entries untouched for this long are dropped by the sweep, whether or
	// not anything still holds a reference to them.
	cacheRetention = time.Hour
	sweepInterval  = 10 * time.Minute
)

// RelationRecorder receives "inbound id -> outbound id" pairs for every
// reply the bot sends, enabling cascade recall.
type RelationRecorder interface {
	AddRelation(sourceID, derivedID string)
}

type cacheEntry struct {
	msg     *Inbound
	touched time.Time
}

// Store is the message identity cache. Repeated observations of the same
// message id converge to one *Inbound; detail fetches happen at most once.
type Store struct {
	tr        Transport
	relations RelationRecorder

	mu      sync.Mutex
	entries map[string]*cacheEntry

	retention time.Duration
	now       func() time.Time
}

func NewStore(tr Transport) *Store {
	return &Store{
		tr:        tr,
		entries:   make(map[string]*cacheEntry),
		retention: cacheRetention,
		now:       time.Now,
	}
}

// AttachRelations wires the relation registry in. Optional; without it
// replies are simply not tracked.
func (s *Store) AttachRelations(r RelationRecorder) {
	s.relations = r
}

// SetTransport swaps the transport in. Used at startup when the store is
// built before the client, and by the console mode.
func (s *Store) SetTransport(tr Transport) {
	s.tr = tr
}

// Resolve returns the one entity for the snapshot's id, creating and
// populating it on first sight. Later snapshots for an already-hydrated id
// only refresh the last-touched timestamp.
func (s *Store) Resolve(snap Snapshot) *Inbound {
	if snap.ID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[snap.ID]
	if !ok {
		e = &cacheEntry{msg: &Inbound{ID: snap.ID, store: s}}
		s.entries[snap.ID] = e
	}
	e.msg.fill(snap)
	e.touched = s.now()
	return e.msg
}

// Lookup returns the cached entity for id without creating one.
func (s *Store) Lookup(id string) (*Inbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.touched = s.now()
	return e.msg, true
}

// FetchDetail hydrates the entity for id through a get_msg round-trip.
// No-op when the entity is already hydrated.
func (s *Store) FetchDetail(ctx context.Context, id string) (*Inbound, error) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok && e.msg.hydrated {
		e.touched = s.now()
		s.mu.Unlock()
		return e.msg, nil
	}
	s.mu.Unlock()

	resp, err := s.tr.Action(ctx, "get_msg", map[string]any{"message_id": id})
	if err != nil {
		return nil, fmt.Errorf("get_msg %s: %w", id, err)
	}
	if rc := resp.Get("retcode").Int(); rc != 0 {
		return nil, fmt.Errorf("get_msg %s: retcode %d", id, rc)
	}

	data := resp.Get("data")
	kind := data.Get("message_type").String()
	if kind == "" {
		if data.Get("group_id").Int() != 0 {
			kind = "group"
		} else {
			kind = "private"
		}
	}

	snap := Snapshot{
		ID:       id,
		Kind:     kind,
		SenderID: data.Get("sender.user_id").Int(),
		GroupID:  data.Get("group_id").Int(),
		Time:     data.Get("time").Int(),
		RawText:  data.Get("raw_message").String(),
		Segments: Parse(json.RawMessage(data.Get("message").Raw), data.Get("raw_message").String()),
	}
	if snap.SenderID == 0 {
		snap.SenderID = data.Get("user_id").Int()
	}
	return s.Resolve(snap), nil
}

// Len reports the number of cached entities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepOnce evicts entries past retention and returns how many were dropped.
// Eviction is unconditional: an entity still referenced elsewhere (for
// example by id in the relation registry) is evicted all the same and must
// be re-fetched on the next use.
func (s *Store) sweepOnce() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	dropped := 0
	for id, e := range s.entries {
		if e.touched.Before(cutoff) {
			delete(s.entries, id)
			dropped++
		}
	}
	return dropped
}

// Start runs the eviction sweep until ctx is done.
func (s *Store) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sweepOnce(); n > 0 {
					logger.DebugCF("message", "Swept message cache", map[string]interface{}{
						"evicted": n,
					})
				}
			}
		}
	}()
}
