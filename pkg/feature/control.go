package feature

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sipeed/clawbot/pkg/command"
	"github.com/sipeed/clawbot/pkg/utils"
)

// knownFeatures are the names the control command can toggle.
var knownFeatures = []string{"dice", "guess", "stats", "github", "remind", "welcome"}

// setupControl registers the feature toggle command. It goes straight to
// the router so a group that switched everything off can still switch
// things back on.
func (e *Engine) setupControl() {
	e.Router.Register(command.Descriptor{
		Feature:     "control",
		Trigger:     "feature",
		Description: "Toggle features for this group",
		Usage:       "feature on|off <name|all> | feature list",
		Handler:     e.handleControl,
	})
}

func (e *Engine) handleControl(c *command.Context) error {
	if c.Msg.GroupID == 0 {
		_, err := e.Msgs.Compose().Text("Feature toggles only apply to group chats.").Reply(c.Ctx, c.Msg)
		return err
	}
	groupID := strconv.FormatInt(c.Msg.GroupID, 10)

	sub, rest := utils.FirstWord(c.Arg)
	switch strings.ToLower(sub) {
	case "on", "off":
		return e.controlToggle(c, groupID, strings.ToLower(sub) == "on", rest)
	case "list", "ls":
		return e.controlList(c, groupID)
	default:
		_, err := e.Msgs.Compose().Text("Usage: feature on|off <name|all> | feature list").Reply(c.Ctx, c.Msg)
		return err
	}
}

func (e *Engine) controlToggle(c *command.Context, groupID string, enable bool, rest string) error {
	name, _ := utils.FirstWord(rest)
	name = strings.ToLower(name)
	if name == "" {
		_, err := e.Msgs.Compose().Text("Which feature? Try: feature list").Reply(c.Ctx, c.Msg)
		return err
	}

	targets := []string{name}
	if name == "all" {
		targets = knownFeatures
	} else if !isKnownFeature(name) {
		_, err := e.Msgs.Compose().Textf("Unknown feature %q. Try: feature list", name).Reply(c.Ctx, c.Msg)
		return err
	}

	for _, f := range targets {
		if err := e.Flags.SetEnabled(groupID, f, enable); err != nil {
			return fmt.Errorf("toggle %s: %w", f, err)
		}
	}

	verb := "disabled"
	if enable {
		verb = "enabled"
	}
	_, err := e.Msgs.Compose().Textf("%s: %s", strings.Join(targets, ", "), verb).Reply(c.Ctx, c.Msg)
	return err
}

func (e *Engine) controlList(c *command.Context, groupID string) error {
	overrides, err := e.Flags.Flags(groupID)
	if err != nil {
		return fmt.Errorf("list flags: %w", err)
	}

	names := append([]string(nil), knownFeatures...)
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Features for this group:\n")
	for _, f := range names {
		on := e.Cfg.Features.DefaultEnabled
		if v, ok := overrides[f]; ok {
			on = v
		}
		mark := "off"
		if on {
			mark = "on"
		}
		fmt.Fprintf(&b, "  %s: %s\n", f, mark)
	}

	_, err = e.Msgs.Compose().Text(strings.TrimRight(b.String(), "\n")).Reply(c.Ctx, c.Msg)
	return err
}

func isKnownFeature(name string) bool {
	for _, f := range knownFeatures {
		if f == name {
			return true
		}
	}
	return false
}
