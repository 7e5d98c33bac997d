package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sipeed/clawbot/pkg/command"
	"github.com/sipeed/clawbot/pkg/config"
	"github.com/sipeed/clawbot/pkg/cron"
	"github.com/sipeed/clawbot/pkg/event"
	"github.com/sipeed/clawbot/pkg/feature"
	"github.com/sipeed/clawbot/pkg/logger"
	"github.com/sipeed/clawbot/pkg/message"
	"github.com/sipeed/clawbot/pkg/onebot"
	"github.com/sipeed/clawbot/pkg/registry"
	"github.com/sipeed/clawbot/pkg/state"
	"github.com/sipeed/clawbot/pkg/storage"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd()
	case "console":
		consoleCmd()
	case "init":
		initCmd()
	case "version", "--version", "-v":
		fmt.Printf("clawbot v%s\n", version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("clawbot - OneBot group assistant v%s\n\n", version)
	fmt.Println("Usage: clawbot <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       Connect to the OneBot endpoint and serve")
	fmt.Println("  console   Local REPL without a OneBot backend")
	fmt.Println("  init      Write a default config file")
	fmt.Println("  version   Show version information")
}

func initLogger(cfg *config.Config) {
	err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Stdout:     cfg.Log.Stdout,
	})
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	if p := os.Getenv("CLAWBOT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".clawbot", "config.json")
}

func loadConfig() (*config.Config, error) {
	if err := loadEnvFile(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.LoadConfig(getConfigPath())
}

func initCmd() {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
		return
	}
	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", path)
	fmt.Println("Set onebot.ws_url (and access_token) there, then start with: clawbot run")
}

func runCmd() {
	for _, arg := range os.Args[2:] {
		if arg == "--debug" || arg == "-d" {
			os.Setenv("CLAWBOT_LOG_LEVEL", "debug")
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	initLogger(cfg)

	store, err := storage.Open(cfg.StoragePath())
	if err != nil {
		fmt.Printf("Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := buildApp(cfg, store, store, store)
	client := onebot.NewClient(cfg.OneBot, app.handleEvent)
	app.attachTransport(client)

	app.start(ctx)
	if err := client.Start(ctx); err != nil {
		fmt.Printf("Error starting OneBot client: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("clawbot v%s connected to %s\n", version, cfg.OneBot.WSUrl)
	fmt.Println("Press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	client.Stop()
	app.stop()
}

// app holds the wired dispatch core. The transport is attached last because
// features, builder and router all call through it.
type app struct {
	cfg       *config.Config
	bus       *event.Bus
	router    *command.Router
	msgs      *message.Store
	engine    *feature.Engine
	cron      *cron.Service
	relations *registry.Relations
	recalled  *registry.Recalled
	recent    *registry.RecentWindow
}

func buildApp(cfg *config.Config, backend state.Backend, flags feature.FlagStore, counters feature.CounterStore) *app {
	keyed := state.NewKeyed(backend)

	relations := registry.NewRelations()
	recalled := registry.NewRecalled()
	recent := registry.NewRecentWindow(time.Hour)

	msgs := message.NewStore(nil)
	msgs.AttachRelations(relations)

	engine := &feature.Engine{
		Cfg:       cfg,
		Bus:       event.NewBus(cfg.Commands.Prefixes),
		Router:    command.NewRouter(cfg.Commands.Prefixes, cfg.Commands.AckEmojiID, nil),
		Msgs:      msgs,
		Keyed:     keyed,
		Gate:      state.NewGate(),
		Guard:     state.NewGuard(keyed),
		Flags:     flags,
		Counters:  counters,
		Relations: relations,
		Recalled:  recalled,
		Recent:    recent,
	}
	engine.Cron = cron.NewService(cfg.RemindStorePath(), engine.DeliverReminder)
	engine.Setup()

	return &app{
		cfg:       cfg,
		bus:       engine.Bus,
		router:    engine.Router,
		msgs:      msgs,
		engine:    engine,
		cron:      engine.Cron,
		relations: relations,
		recalled:  recalled,
		recent:    recent,
	}
}

func (a *app) attachTransport(tr message.Transport) {
	a.msgs.SetTransport(tr)
	a.router.SetTransport(tr)
}

func (a *app) start(ctx context.Context) {
	a.msgs.Start(ctx)
	registry.StartSweeps(ctx, a.relations, a.recalled, a.recent)
	a.cron.Start()
}

func (a *app) stop() {
	a.cron.Stop()
}

// handleEvent is the OneBot client's sink: message events get their cached
// entity resolved first, everything else dispatches raw.
func (a *app) handleEvent(raw *onebot.RawEvent) {
	if !raw.IsMessage() {
		a.bus.Dispatch(raw, nil)
		return
	}
	if a.recalled.IsRecalled(raw.MessageID) {
		return
	}

	msg := a.msgs.Resolve(message.Snapshot{
		ID:       raw.MessageID,
		Kind:     raw.MessageType,
		SenderID: raw.UserID,
		GroupID:  raw.GroupID,
		Time:     raw.Time,
		RawText:  raw.RawMessage,
		Segments: message.Parse(raw.Message, raw.RawMessage),
	})
	a.bus.Dispatch(raw, msg)
}
