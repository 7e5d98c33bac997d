package feature

import (
	"fmt"
	"time"

	"github.com/sipeed/clawbot/pkg/command"
	"github.com/sipeed/clawbot/pkg/event"
	"github.com/sipeed/clawbot/pkg/logger"
)

const messagesCounter = "messages"

func (e *Engine) setupStats() {
	// Count every group message, command or not, as long as the group has
	// stats switched on.
	e.Bus.Subscribe("message.group", func(evt event.Event) {
		if e.Counters == nil || evt.Raw == nil {
			return
		}
		if !e.enabledFor(evt.Raw.GroupID, "stats") {
			return
		}
		scope := evt.Raw.ScopeKey()
		day := time.Now().Format("2006-01-02")
		if _, err := e.Counters.IncrCounter(scope, messagesCounter, day); err != nil {
			logger.WarnCF("stats", "Counter increment failed", map[string]interface{}{
				"scope": scope,
				"error": err.Error(),
			})
		}
	})

	e.Register(command.Descriptor{
		Feature:     "stats",
		Trigger:     "stats",
		Description: "Show message counts for this chat",
		Handler:     e.handleStats,
	})
}

// handleStats aggregates under the gate so two overlapping requests for the
// same chat run one at a time instead of racing the counter reads.
func (e *Engine) handleStats(c *command.Context) error {
	scope := c.Event.Raw.ScopeKey()

	return e.Gate.Do(scope, func() error {
		day := time.Now().Format("2006-01-02")
		today, err := e.Counters.Counter(scope, messagesCounter, day)
		if err != nil {
			return fmt.Errorf("read today's counter: %w", err)
		}
		total, err := e.Counters.CounterTotals(scope, messagesCounter)
		if err != nil {
			return fmt.Errorf("read counter total: %w", err)
		}

		_, err = e.Msgs.Compose().
			Textf("Messages here: %d today, %d all time.", today, total).
			Reply(c.Ctx, c.Msg)
		return err
	})
}
