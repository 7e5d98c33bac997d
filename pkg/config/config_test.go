package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.OneBot.WSUrl != "ws://127.0.0.1:3001" {
		t.Fatalf("ws_url = %q", cfg.OneBot.WSUrl)
	}
	if len(cfg.Commands.Prefixes) != 1 || cfg.Commands.Prefixes[0] != "/" {
		t.Fatalf("prefixes = %v", cfg.Commands.Prefixes)
	}
	if cfg.Commands.AckEmojiID != "76" {
		t.Fatalf("ack emoji = %q", cfg.Commands.AckEmojiID)
	}
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"onebot": {"ws_url": "ws://10.0.0.1:3001"},
		"features": {"allow_groups": ["123", 456]}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLAWBOT_ONEBOT_ACCESS_TOKEN", "secret")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.OneBot.WSUrl != "ws://10.0.0.1:3001" {
		t.Fatalf("file value not applied: %q", cfg.OneBot.WSUrl)
	}
	if cfg.OneBot.AccessToken != "secret" {
		t.Fatalf("env override not applied: %q", cfg.OneBot.AccessToken)
	}
	// Mixed string/number groups normalize to strings.
	if len(cfg.Features.AllowGroups) != 2 || cfg.Features.AllowGroups[1] != "456" {
		t.Fatalf("allow_groups = %v", cfg.Features.AllowGroups)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x/y.db"); got != home+"/x/y.db" {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("ExpandHome changed absolute path: %q", got)
	}
}
