package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/sipeed/clawbot/pkg/command"
	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
)

const guessKind = "guess"

var guessNumberPattern = regexp.MustCompile(`^\d{1,3}$`)

// answerFunc picks the secret number. Swapped out by tests.
var answerFunc = func() int { return rand.Intn(100) + 1 }

type guessRound struct {
	Answer    int   `json:"answer"`
	StartedBy int64 `json:"startedBy"`
}

func (e *Engine) setupGuess() {
	e.Register(command.Descriptor{
		Feature:     "guess",
		Trigger:     "guess",
		Description: "Start a number guessing round (1-100)",
		Usage:       "guess, then send plain numbers",
		Handler:     e.handleGuessStart,
	})
	e.Register(command.Descriptor{
		Feature: "guess",
		Pattern: guessNumberPattern,
		NoAck:   true,
		Handler: e.handleGuessAttempt,
	})
}

func (e *Engine) handleGuessStart(c *command.Context) error {
	scope := c.Event.Raw.ScopeKey()

	round := guessRound{Answer: answerFunc(), StartedBy: c.Msg.SenderID}
	payload, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("encode round: %w", err)
	}

	started, err := e.Keyed.SetIfAbsent(scope, guessKind, payload)
	if err != nil {
		return fmt.Errorf("start round: %w", err)
	}
	if !started {
		_, err := e.Msgs.Compose().Text("A round is already in progress, keep guessing!").Reply(c.Ctx, c.Msg)
		return err
	}

	revealAfter := time.Duration(e.Cfg.Features.Guess.RevealAfterSec) * time.Second
	if revealAfter <= 0 {
		revealAfter = 60 * time.Second
	}
	target := message.TargetOf(c.Msg)
	e.Guard.After(revealAfter, scope, guessKind, payload, func() {
		e.revealRound(scope, target, round.Answer)
	})

	_, err = e.Msgs.Compose().
		Textf("I picked a number between 1 and 100. You have %d seconds!", int(revealAfter.Seconds())).
		Reply(c.Ctx, c.Msg)
	return err
}

// revealRound runs from the deferred guard: the round is known to be the
// one whose timer fired, so it is closed and the answer announced.
func (e *Engine) revealRound(scope string, target message.Target, answer int) {
	if err := e.Keyed.Delete(scope, guessKind); err != nil {
		logger.WarnCF("guess", "Could not close round", map[string]interface{}{
			"scope": scope,
			"error": err.Error(),
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := e.Msgs.Compose().Textf("Time's up! The number was %d.", answer).Send(ctx, target); err != nil {
		logger.WarnCF("guess", "Could not announce answer", map[string]interface{}{
			"scope": scope,
			"error": err.Error(),
		})
	}
}

func (e *Engine) handleGuessAttempt(c *command.Context) error {
	scope := c.Event.Raw.ScopeKey()

	payload, _, ok, err := e.Keyed.Get(scope, guessKind)
	if err != nil {
		return fmt.Errorf("read round: %w", err)
	}
	if !ok {
		return nil
	}
	var round guessRound
	if err := json.Unmarshal(payload, &round); err != nil {
		return fmt.Errorf("decode round: %w", err)
	}

	n, err := strconv.Atoi(c.Match[0])
	if err != nil || n < 1 || n > 100 {
		return nil
	}

	switch {
	case n < round.Answer:
		_, err = e.Msgs.Compose().Text("Higher!").Reply(c.Ctx, c.Msg)
	case n > round.Answer:
		_, err = e.Msgs.Compose().Text("Lower!").Reply(c.Ctx, c.Msg)
	default:
		if derr := e.Keyed.Delete(scope, guessKind); derr != nil {
			return fmt.Errorf("close round: %w", derr)
		}
		_, err = e.Msgs.Compose().Textf("Correct! The number was %d.", round.Answer).Reply(c.Ctx, c.Msg)
	}
	return err
}
