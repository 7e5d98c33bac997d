package feature

import (
	"context"
	"strconv"
	"time"

	"github.com/sipeed/clawbot/pkg/event"
	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
)

// setupWelcome greets members joining a group. This is a notice listener,
// not a command, but it honors the same per-group toggle.
func (e *Engine) setupWelcome() {
	e.Bus.Subscribe("notice.group_increase", func(evt event.Event) {
		raw := evt.Raw
		if raw == nil || raw.GroupID == 0 || raw.UserID == 0 {
			return
		}
		if raw.UserID == raw.SelfID {
			return
		}
		if !e.enabledFor(raw.GroupID, "welcome") {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := e.Msgs.Compose().
			At(raw.UserID).
			Text(" Welcome! Say hi, and try the feature list command to see what I can do.").
			Send(ctx, message.Target{GroupID: raw.GroupID})
		if err != nil {
			logger.WarnCF("welcome", "Greeting failed", map[string]interface{}{
				"group": raw.GroupID,
				"user":  strconv.FormatInt(raw.UserID, 10),
				"error": err.Error(),
			})
		}
	})
}
