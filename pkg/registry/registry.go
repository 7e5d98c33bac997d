package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sipeed/clawbot/pkg/logger"
)

const (
	relationRetention = 2 * time.Hour
	recalledRetention = 2 * time.Hour
	sweepInterval     = 30 * time.Minute

	// cascadeDepth caps the recursive walk over reply relations so a cycle
	// or a long reply chain cannot explode into an unbounded recall storm.
	cascadeDepth = 3
)

type relationEntry struct {
	derived []string
	addedAt time.Time
}

// Relations maps an inbound message id to the ids the bot produced in
// response to it, for cascade recall. Entries age out by sweep only; reads
// do not refresh them.
type Relations struct {
	mu      sync.Mutex
	entries map[string]*relationEntry
	nowFunc func() time.Time
}

func NewRelations() *Relations {
	return &Relations{
		entries: make(map[string]*relationEntry),
		nowFunc: time.Now,
	}
}

func (r *Relations) AddRelation(sourceID, derivedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sourceID]
	if !ok {
		e = &relationEntry{addedAt: r.nowFunc()}
		r.entries[sourceID] = e
	}
	e.derived = append(e.derived, derivedID)
}

func (r *Relations) Relations(sourceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sourceID]
	if !ok {
		return nil
	}
	out := make([]string, len(e.derived))
	copy(out, e.derived)
	return out
}

// Cascade returns every id transitively derived from sourceID, walking at
// most cascadeDepth levels and never revisiting an id.
func (r *Relations) Cascade(sourceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	seen := map[string]bool{sourceID: true}

	frontier := []string{sourceID}
	for depth := 0; depth < cascadeDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			e, ok := r.entries[id]
			if !ok {
				continue
			}
			for _, d := range e.derived {
				if seen[d] {
					continue
				}
				seen[d] = true
				out = append(out, d)
				next = append(next, d)
			}
		}
		frontier = next
	}
	return out
}

func (r *Relations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Relations) sweepOnce() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.nowFunc().Add(-relationRetention)
	n := 0
	for id, e := range r.entries {
		if e.addedAt.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Recalled remembers which message ids have been retracted, so handlers can
// skip work on messages that no longer exist.
type Recalled struct {
	mu      sync.Mutex
	entries map[string]time.Time
	nowFunc func() time.Time
}

func NewRecalled() *Recalled {
	return &Recalled{
		entries: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (r *Recalled) MarkRecalled(id string) {
	r.mu.Lock()
	r.entries[id] = r.nowFunc()
	r.mu.Unlock()
}

func (r *Recalled) IsRecalled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Recalled) sweepOnce() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.nowFunc().Add(-recalledRetention)
	n := 0
	for id, at := range r.entries {
		if at.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// RecentWindow suppresses duplicate processing of the same item per scope
// within a caller-chosen window. Marking refreshes the timestamp; the sweep
// drops entries older than the longest window callers use.
type RecentWindow struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	retention time.Duration
	nowFunc   func() time.Time
}

func NewRecentWindow(retention time.Duration) *RecentWindow {
	return &RecentWindow{
		entries:   make(map[string]time.Time),
		retention: retention,
		nowFunc:   time.Now,
	}
}

func windowKey(scopeKey, itemKey string) string { return scopeKey + "\x00" + itemKey }

// WasSeenRecently reports whether the item was marked within window, and
// marks it now either way.
func (r *RecentWindow) WasSeenRecently(scopeKey, itemKey string, window time.Duration) bool {
	now := r.nowFunc()
	key := windowKey(scopeKey, itemKey)

	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.entries[key]
	r.entries[key] = now
	return ok && now.Sub(last) < window
}

func (r *RecentWindow) sweepOnce() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.nowFunc().Add(-r.retention)
	n := 0
	for key, at := range r.entries {
		if at.Before(cutoff) {
			delete(r.entries, key)
			n++
		}
	}
	return n
}

type sweeper interface {
	sweepOnce() int
}

// StartSweeps runs each registry's sweep on one shared ticker until ctx ends.
func StartSweeps(ctx context.Context, regs ...sweeper) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				total := 0
				for _, reg := range regs {
					total += reg.sweepOnce()
				}
				if total > 0 {
					logger.DebugCF("registry", "Sweep evicted entries", map[string]interface{}{
						"evicted": total,
					})
				}
			}
		}
	}()
}
