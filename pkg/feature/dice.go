package feature

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/sipeed/clawbot/pkg/command"
)

const (
	diceMaxCount = 10
	diceMaxSides = 1000
)

var dicePattern = regexp.MustCompile(`(?i)^r(\d*)d(\d*)$`)

// rollFunc returns a value in [1, sides]. Swapped out by tests.
var rollFunc = func(sides int) int { return rand.Intn(sides) + 1 }

func (e *Engine) setupDice() {
	e.Register(command.Descriptor{
		Feature:     "dice",
		Pattern:     dicePattern,
		Description: "Roll dice",
		Usage:       "r2d20 (count defaults to 1, sides to 100)",
		NoAck:       true,
		Handler:     e.handleDice,
	})
}

func (e *Engine) handleDice(c *command.Context) error {
	count, sides := parseDiceSpec(c.Match[1], c.Match[2])
	if count < 1 || count > diceMaxCount || sides < 2 || sides > diceMaxSides {
		_, err := e.Msgs.Compose().Textf("Out of range: at most %dd%d.", diceMaxCount, diceMaxSides).Reply(c.Ctx, c.Msg)
		return err
	}

	rolls := make([]string, count)
	for i := range rolls {
		rolls[i] = strconv.Itoa(rollFunc(sides))
	}

	_, err := e.Msgs.Compose().Textf("You rolled: %s", strings.Join(rolls, ", ")).Reply(c.Ctx, c.Msg)
	return err
}

// parseDiceSpec applies the defaults: "rd" means one d100.
func parseDiceSpec(countStr, sidesStr string) (count, sides int) {
	count, sides = 1, 100
	if countStr != "" {
		count, _ = strconv.Atoi(countStr)
	}
	if sidesStr != "" {
		sides, _ = strconv.Atoi(sidesStr)
	}
	return count, sides
}
