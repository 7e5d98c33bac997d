package feature

import (
	"context"
	"strconv"

	"github.com/sipeed/clawbot/pkg/command"
	"github.com/sipeed/clawbot/pkg/config"
	"github.com/sipeed/clawbot/pkg/cron"
	"github.com/sipeed/clawbot/pkg/event"
	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/registry"
	"github.com/sipeed/clawbot/pkg/state"
)

// FlagStore is the per-group feature toggle collaborator.
type FlagStore interface {
	IsEnabled(groupID, feature string, def bool) (bool, error)
	SetEnabled(groupID, feature string, enabled bool) error
	Flags(groupID string) (map[string]bool, error)
}

// CounterStore tracks daily per-scope counters.
type CounterStore interface {
	IncrCounter(scopeKey, name, day string) (int64, error)
	Counter(scopeKey, name, day string) (int64, error)
	CounterTotals(scopeKey, name string) (int64, error)
}

// Engine wires the dispatch core into the features. Every registration goes
// through it so group enablement is checked in one place.
type Engine struct {
	Cfg       *config.Config
	Bus       *event.Bus
	Router    *command.Router
	Msgs      *message.Store
	Keyed     *state.Keyed
	Gate      *state.Gate
	Guard     *state.Guard
	Flags     FlagStore
	Counters  CounterStore
	Relations *registry.Relations
	Recalled  *registry.Recalled
	Recent    *registry.RecentWindow
	Cron      *cron.Service
}

// Register wraps the descriptor's handler with the group enablement check
// and hands it to the router. Private chats bypass the check.
func (e *Engine) Register(d command.Descriptor) {
	inner := d.Handler
	d.Handler = func(c *command.Context) error {
		if c.Msg.GroupID != 0 && !e.enabledFor(c.Msg.GroupID, d.Feature) {
			return nil
		}
		return inner(c)
	}
	e.Router.Register(d)
}

func (e *Engine) enabledFor(groupID int64, feature string) bool {
	if !e.groupAllowed(groupID) {
		return false
	}
	if e.Flags == nil {
		return e.Cfg.Features.DefaultEnabled
	}
	on, err := e.Flags.IsEnabled(strconv.FormatInt(groupID, 10), feature, e.Cfg.Features.DefaultEnabled)
	if err != nil {
		logger.WarnCF("feature", "Flag lookup failed, using default", map[string]interface{}{
			"group":   groupID,
			"feature": feature,
			"error":   err.Error(),
		})
		return e.Cfg.Features.DefaultEnabled
	}
	return on
}

// groupAllowed applies the allow-list. An empty list admits every group.
func (e *Engine) groupAllowed(groupID int64) bool {
	allow := e.Cfg.Features.AllowGroups
	if len(allow) == 0 {
		return true
	}
	id := strconv.FormatInt(groupID, 10)
	for _, g := range allow {
		if g == id {
			return true
		}
	}
	return false
}

// Setup registers every feature and the bus subscriptions that drive the
// router and the bookkeeping registries.
func (e *Engine) Setup() {
	e.Bus.Subscribe("message", func(evt event.Event) {
		e.Router.Dispatch(context.Background(), evt)
	})

	e.setupControl()
	e.setupDice()
	e.setupGuess()
	e.setupStats()
	e.setupRecall()
	e.setupGitHub()
	e.setupRemind()
	e.setupWelcome()
}
