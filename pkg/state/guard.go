package state

import (
	"bytes"
	"time"

	"github.com/sipeed/clawbot/pkg/logger"
)

// Guard schedules deferred actions that only run if a state slot still holds
// the exact payload observed when they were scheduled. There is no timer
// registry to cancel through: a round that ends early simply deletes or
// replaces the slot, and the stale timer detects the change and does nothing.
type Guard struct {
	state *Keyed
}

func NewGuard(state *Keyed) *Guard {
	return &Guard{state: state}
}

// After runs fn once delay elapses, provided the slot's payload still equals
// snapshot byte for byte. A vanished or replaced slot is a silent no-op.
// The returned timer is for tests; callers normally discard it.
func (g *Guard) After(delay time.Duration, scopeKey, kind string, snapshot []byte, fn func()) *time.Timer {
	return time.AfterFunc(delay, func() {
		payload, _, ok, err := g.state.Get(scopeKey, kind)
		if err != nil {
			logger.WarnCF("state", "Deferred check could not read slot", map[string]interface{}{
				"scope": scopeKey,
				"kind":  kind,
				"error": err.Error(),
			})
			return
		}
		if !ok || !bytes.Equal(payload, snapshot) {
			return
		}
		fn()
	})
}
