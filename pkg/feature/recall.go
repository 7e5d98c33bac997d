package feature

import (
	"context"
	"time"

	"github.com/sipeed/clawbot/pkg/event"
	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
)

// setupRecall listens for message retractions. When a message the bot
// replied to is recalled, the bot's own derived messages are deleted too,
// following the relation graph a bounded number of levels deep.
func (e *Engine) setupRecall() {
	handler := func(evt event.Event) {
		if evt.Raw == nil || evt.Raw.MessageID == "" {
			return
		}
		e.cascadeRecall(evt.Raw.MessageID)
	}
	e.Bus.Subscribe("notice.group_recall", handler)
	e.Bus.Subscribe("notice.friend_recall", handler)
}

func (e *Engine) cascadeRecall(sourceID string) {
	e.Recalled.MarkRecalled(sourceID)

	derived := e.Relations.Cascade(sourceID)
	if len(derived) == 0 {
		return
	}
	logger.InfoCF("recall", "Cascading recall to derived messages", map[string]interface{}{
		"source":  sourceID,
		"derived": len(derived),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range derived {
		if e.Recalled.IsRecalled(id) {
			continue
		}
		e.Recalled.MarkRecalled(id)

		msg, ok := e.Msgs.Lookup(id)
		if !ok {
			msg = e.Msgs.Resolve(message.Snapshot{ID: id})
		}
		if err := msg.Delete(ctx); err != nil {
			logger.WarnCF("recall", "Could not delete derived message", map[string]interface{}{
				"message_id": id,
				"error":      err.Error(),
			})
		}
	}
}
