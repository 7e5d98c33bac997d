package feature

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sipeed/clawbot/pkg/command"
	"github.com/sipeed/clawbot/pkg/cron"
	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/utils"
)

func (e *Engine) setupRemind() {
	e.Register(command.Descriptor{
		Feature:     "remind",
		Trigger:     "remind",
		Description: "Schedule reminders",
		Usage:       "remind in <duration> <text> | remind cron <m h dom mon dow> <text> | remind list | remind rm <id>",
		Handler:     e.handleRemind,
	})
}

func (e *Engine) handleRemind(c *command.Context) error {
	sub, rest := utils.FirstWord(c.Arg)
	switch strings.ToLower(sub) {
	case "in":
		return e.remindIn(c, rest)
	case "cron":
		return e.remindCron(c, rest)
	case "list", "ls":
		return e.remindList(c)
	case "rm", "remove":
		return e.remindRemove(c, rest)
	default:
		_, err := e.Msgs.Compose().
			Text("Usage: remind in <duration> <text> | remind cron <expr> <text> | remind list | remind rm <id>").
			Reply(c.Ctx, c.Msg)
		return err
	}
}

func (e *Engine) remindDelivery(c *command.Context, text string) cron.Delivery {
	d := cron.Delivery{Text: text}
	if c.Msg.GroupID != 0 {
		d.GroupID = c.Msg.GroupID
	} else {
		d.UserID = c.Msg.SenderID
	}
	return d
}

func (e *Engine) remindIn(c *command.Context, rest string) error {
	durStr, text := utils.FirstWord(rest)
	dur, err := time.ParseDuration(durStr)
	if err != nil || dur <= 0 {
		_, rerr := e.Msgs.Compose().Text("Give me a duration like 10m or 2h30m.").Reply(c.Ctx, c.Msg)
		return rerr
	}
	if text == "" {
		text = "Reminder!"
	}

	at := time.Now().Add(dur).UnixMilli()
	job, err := e.Cron.Add(utils.Truncate(text, 40), cron.Schedule{Kind: "at", AtMS: &at}, e.remindDelivery(c, text))
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}

	_, err = e.Msgs.Compose().Textf("Will remind you in %s (id %s).", dur, shortID(job.ID)).Reply(c.Ctx, c.Msg)
	return err
}

func (e *Engine) remindCron(c *command.Context, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 5 {
		_, err := e.Msgs.Compose().Text("Cron reminders need 5 schedule fields, e.g. remind cron 0 9 * * * stand up").Reply(c.Ctx, c.Msg)
		return err
	}
	expr := strings.Join(fields[:5], " ")
	text := strings.Join(fields[5:], " ")
	if text == "" {
		text = "Reminder!"
	}

	job, err := e.Cron.Add(utils.Truncate(text, 40), cron.Schedule{Kind: "cron", Expr: expr}, e.remindDelivery(c, text))
	if err != nil {
		_, rerr := e.Msgs.Compose().Textf("That schedule doesn't parse: %v", err).Reply(c.Ctx, c.Msg)
		return rerr
	}

	_, err = e.Msgs.Compose().Textf("Scheduled %q (id %s).", expr, shortID(job.ID)).Reply(c.Ctx, c.Msg)
	return err
}

func (e *Engine) remindList(c *command.Context) error {
	var groupID, userID int64
	if c.Msg.GroupID != 0 {
		groupID = c.Msg.GroupID
	} else {
		userID = c.Msg.SenderID
	}

	jobs := e.Cron.ListForScope(groupID, userID)
	if len(jobs) == 0 {
		_, err := e.Msgs.Compose().Text("No reminders here.").Reply(c.Ctx, c.Msg)
		return err
	}

	var b strings.Builder
	b.WriteString("Reminders:\n")
	for _, j := range jobs {
		fmt.Fprintf(&b, "  %s  %s", shortID(j.ID), j.Name)
		if j.NextRunAtMS != nil {
			fmt.Fprintf(&b, "  (next %s)", time.UnixMilli(*j.NextRunAtMS).Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}
	_, err := e.Msgs.Compose().Text(strings.TrimRight(b.String(), "\n")).Reply(c.Ctx, c.Msg)
	return err
}

func (e *Engine) remindRemove(c *command.Context, rest string) error {
	id, _ := utils.FirstWord(rest)
	if id == "" {
		_, err := e.Msgs.Compose().Text("Which one? remind rm <id>").Reply(c.Ctx, c.Msg)
		return err
	}

	var groupID, userID int64
	if c.Msg.GroupID != 0 {
		groupID = c.Msg.GroupID
	} else {
		userID = c.Msg.SenderID
	}
	for _, j := range e.Cron.ListForScope(groupID, userID) {
		if shortID(j.ID) == id || j.ID == id {
			e.Cron.Remove(j.ID)
			_, err := e.Msgs.Compose().Text("Removed.").Reply(c.Ctx, c.Msg)
			return err
		}
	}
	_, err := e.Msgs.Compose().Textf("No reminder %s here.", id).Reply(c.Ctx, c.Msg)
	return err
}

// DeliverReminder is the cron service's delivery hook.
func (e *Engine) DeliverReminder(job cron.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	target := message.Target{GroupID: job.Delivery.GroupID, UserID: job.Delivery.UserID}
	b := e.Msgs.Compose().Text("Reminder: " + job.Delivery.Text)
	if job.Delivery.UserID != 0 && job.Delivery.GroupID != 0 {
		b = e.Msgs.Compose().At(job.Delivery.UserID).Text(" Reminder: " + job.Delivery.Text)
	}
	_, err := b.Send(ctx, target)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
