package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/tidwall/gjson"

	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/onebot"
	"github.com/sipeed/clawbot/pkg/state"
)

const consoleUserID = 10001

// consoleTransport stands in for a OneBot backend: sends print to stdout
// and every action answers like a well-behaved implementation.
type consoleTransport struct {
	mu     sync.Mutex
	nextID int
}

func (c *consoleTransport) Action(_ context.Context, action string, params any) (gjson.Result, error) {
	p, _ := params.(map[string]any)

	switch action {
	case "send_msg", "send_group_forward_msg", "send_private_forward_msg":
		c.mu.Lock()
		c.nextID++
		id := fmt.Sprintf("console-%d", c.nextID)
		c.mu.Unlock()

		if segs, ok := p["message"].([]message.Segment); ok {
			fmt.Printf("\n<bot> %s\n\n", renderSegments(segs))
		} else {
			fmt.Printf("\n<bot> [forward bundle]\n\n")
		}
		return gjson.Parse(fmt.Sprintf(`{"status":"ok","retcode":0,"data":{"message_id":"%s"}}`, id)), nil

	case "get_msg":
		id, _ := p["message_id"].(string)
		return gjson.Parse(fmt.Sprintf(`{"status":"ok","retcode":0,"data":{
			"message_id":"%s","message_type":"private","time":%d,
			"sender":{"user_id":0},"raw_message":"","message":[]}}`, id, time.Now().Unix())), nil
	}
	return gjson.Parse(`{"status":"ok","retcode":0,"data":null}`), nil
}

func renderSegments(segs []message.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		switch s.Type {
		case "text":
			b.WriteString(s.Get("text"))
		case "at":
			b.WriteString("@" + s.Get("qq"))
		case "reply":
			// Replies to the console user are noise in a REPL.
		default:
			fmt.Fprintf(&b, "[%s]", s.Type)
		}
	}
	return b.String()
}

// consoleCmd runs the whole dispatch core against a local REPL: each line
// becomes a synthetic private message event.
func consoleCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Stdout = false
	initLogger(cfg)

	tr := &consoleTransport{}
	app := buildApp(cfg, state.NewMemoryBackend(), memFlags{}, memCounters{})
	app.attachTransport(tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.start(ctx)
	defer app.stop()

	fmt.Printf("clawbot v%s console (prefixes: %s). Type 'exit' to quit.\n",
		version, strings.Join(cfg.Commands.Prefixes, " "))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".clawbot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	seq := 0
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nBye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}

		seq++
		app.handleEvent(syntheticEvent(seq, input))
		// Handlers run async; give them a beat before the next prompt.
		time.Sleep(150 * time.Millisecond)
	}
}

func syntheticEvent(seq int, text string) *onebot.RawEvent {
	return &onebot.RawEvent{
		PostType:    "message",
		MessageType: "private",
		SubType:     "friend",
		MessageID:   "console-in-" + strconv.Itoa(seq),
		UserID:      consoleUserID,
		Time:        time.Now().Unix(),
		RawMessage:  text,
	}
}

// memFlags and memCounters keep console state in memory only.
type memFlags struct{}

func (memFlags) IsEnabled(_, _ string, def bool) (bool, error) { return def, nil }
func (memFlags) SetEnabled(_, _ string, _ bool) error          { return nil }
func (memFlags) Flags(string) (map[string]bool, error)         { return map[string]bool{}, nil }

type memCounters struct{}

func (memCounters) IncrCounter(scopeKey, name, day string) (int64, error) { return 1, nil }
func (memCounters) Counter(scopeKey, name, day string) (int64, error)     { return 0, nil }
func (memCounters) CounterTotals(scopeKey, name string) (int64, error)    { return 0, nil }
