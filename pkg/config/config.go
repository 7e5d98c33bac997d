package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow lists can contain both "123456" and 123456.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	OneBot   OneBotConfig   `json:"onebot"`
	Commands CommandsConfig `json:"commands"`
	Features FeaturesConfig `json:"features"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
	mu       sync.RWMutex
}

type OneBotConfig struct {
	WSUrl            string  `json:"ws_url" env:"CLAWBOT_ONEBOT_WS_URL"`
	AccessToken      string  `json:"access_token" env:"CLAWBOT_ONEBOT_ACCESS_TOKEN"`
	ActionTimeoutSec int     `json:"action_timeout_seconds" env:"CLAWBOT_ONEBOT_ACTION_TIMEOUT_SECONDS"`
	HeartbeatGraceSec int    `json:"heartbeat_grace_seconds" env:"CLAWBOT_ONEBOT_HEARTBEAT_GRACE_SECONDS"`
	RateLimitRPS     float64 `json:"rate_limit_rps" env:"CLAWBOT_ONEBOT_RATE_LIMIT_RPS"`
	RateLimitBurst   int     `json:"rate_limit_burst" env:"CLAWBOT_ONEBOT_RATE_LIMIT_BURST"`
}

type CommandsConfig struct {
	// Prefixes are checked in order; the first match is stripped.
	// Commands also fire without any prefix when none matches.
	Prefixes   []string `json:"prefixes" env:"CLAWBOT_COMMANDS_PREFIXES"`
	AckEmojiID string   `json:"ack_emoji_id" env:"CLAWBOT_COMMANDS_ACK_EMOJI_ID"`
}

type FeaturesConfig struct {
	// DefaultEnabled applies when a group has no stored flag for a feature.
	DefaultEnabled bool                `json:"default_enabled" env:"CLAWBOT_FEATURES_DEFAULT_ENABLED"`
	AllowGroups    FlexibleStringSlice `json:"allow_groups" env:"CLAWBOT_FEATURES_ALLOW_GROUPS"`
	GitHub         GitHubConfig        `json:"github"`
	Guess          GuessConfig         `json:"guess"`
	Remind         RemindConfig        `json:"remind"`
}

type GitHubConfig struct {
	Token      string `json:"token" env:"CLAWBOT_FEATURES_GITHUB_TOKEN"`
	APIBase    string `json:"api_base" env:"CLAWBOT_FEATURES_GITHUB_API_BASE"`
	TimeoutSec int    `json:"timeout_seconds" env:"CLAWBOT_FEATURES_GITHUB_TIMEOUT_SECONDS"`
}

type GuessConfig struct {
	RevealAfterSec int `json:"reveal_after_seconds" env:"CLAWBOT_FEATURES_GUESS_REVEAL_AFTER_SECONDS"`
}

type RemindConfig struct {
	StorePath string `json:"store_path" env:"CLAWBOT_FEATURES_REMIND_STORE_PATH"`
}

type StorageConfig struct {
	Path string `json:"path" env:"CLAWBOT_STORAGE_PATH"`
}

type LogConfig struct {
	Level      string `json:"level" env:"CLAWBOT_LOG_LEVEL"`
	File       string `json:"file" env:"CLAWBOT_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" env:"CLAWBOT_LOG_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" env:"CLAWBOT_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" env:"CLAWBOT_LOG_MAX_AGE_DAYS"`
	Compress   bool   `json:"compress" env:"CLAWBOT_LOG_COMPRESS"`
	Stdout     bool   `json:"stdout" env:"CLAWBOT_LOG_STDOUT"`
}

func DefaultConfig() *Config {
	return &Config{
		OneBot: OneBotConfig{
			WSUrl:             "ws://127.0.0.1:3001",
			AccessToken:       "",
			ActionTimeoutSec:  15,
			HeartbeatGraceSec: 0, // disabled unless set
			RateLimitRPS:      0, // disabled unless set
			RateLimitBurst:    1,
		},
		Commands: CommandsConfig{
			Prefixes:   []string{"/"},
			AckEmojiID: "76", // thumbs-up
		},
		Features: FeaturesConfig{
			DefaultEnabled: true,
			AllowGroups:    FlexibleStringSlice{},
			GitHub: GitHubConfig{
				APIBase:    "https://api.github.com",
				TimeoutSec: 10,
			},
			Guess: GuessConfig{
				RevealAfterSec: 60,
			},
			Remind: RemindConfig{
				StorePath: "~/.clawbot/reminders.json",
			},
		},
		Storage: StorageConfig{
			Path: "~/.clawbot/clawbot.db",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Stdout:     true,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides apply with or without a config file.
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// StoragePath returns the sqlite path with ~ expanded.
func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Storage.Path)
}

// RemindStorePath returns the reminder store path with ~ expanded.
func (c *Config) RemindStorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Features.Remind.StorePath)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
