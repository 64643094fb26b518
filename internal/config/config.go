// Package config loads matsync configuration from defaults, a JSON file at
// $XDG_CONFIG_HOME/matsync/config.json, and MATSYNC_* environment variables,
// in that order of precedence (env wins).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Queue   QueueConfig   `json:"queue"`
	Therapy TherapyConfig `json:"therapy"`
	Vault   VaultConfig   `json:"vault"`
	Poll    PollConfig    `json:"poll"`
	Server  ServerConfig  `json:"server"`
	Log     LogConfig     `json:"log"`
}

type QueueConfig struct {
	BaseURL      string `json:"base_url"`
	AthleteToken string `json:"athlete_token"`
	CoachToken   string `json:"coach_token"`
}

// TherapyConfig points at the dialogue service; it defaults to the queue
// service base URL, which hosts the therapy endpoints in the reference
// deployment.
type TherapyConfig struct {
	BaseURL string `json:"base_url"`
}

type VaultConfig struct {
	Dir string `json:"dir"`
}

type PollConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// ServerConfig configures the reference queue service. AthleteTokens maps
// bearer token to athlete platform id; when empty, serve falls back to the
// client-side tokens so a single-user setup needs no extra keys.
type ServerConfig struct {
	Port          int               `json:"port"`
	DataDir       string            `json:"data_dir"`
	AthleteTokens map[string]string `json:"athlete_tokens"`
	CoachToken    string            `json:"coach_token"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Queue: QueueConfig{
			BaseURL: "http://127.0.0.1:4600",
		},
		Vault: VaultConfig{
			Dir: filepath.Join(home, "matsync-vault"),
		},
		Poll: PollConfig{
			IntervalSeconds: 30,
		},
		Server: ServerConfig{
			Port:    4600,
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "matsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matsync"
	}
	return filepath.Join(home, ".local", "share", "matsync")
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "matsync", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "matsync", "config.json")
}

// Load reads configuration from the config file (if present) with
// environment overrides. Token requirements are contextual: commands
// validate what they need via RequireAthlete/RequireCoach.
func Load() (Config, error) {
	return loadFrom(configFilePath(), os.Getenv)
}

func loadFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	applyEnv(&cfg, getenv)

	if cfg.Therapy.BaseURL == "" {
		cfg.Therapy.BaseURL = cfg.Queue.BaseURL
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Queue.BaseURL, "MATSYNC_QUEUE_URL")
	setString(&cfg.Queue.AthleteToken, "MATSYNC_ATHLETE_TOKEN")
	setString(&cfg.Queue.CoachToken, "MATSYNC_COACH_TOKEN")
	setString(&cfg.Therapy.BaseURL, "MATSYNC_THERAPY_URL")
	setString(&cfg.Vault.Dir, "MATSYNC_VAULT_DIR")
	setString(&cfg.Server.DataDir, "MATSYNC_DATA_DIR")
	setString(&cfg.Log.Level, "MATSYNC_LOG_LEVEL")

	if v := getenv("MATSYNC_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Poll.IntervalSeconds = n
		}
	}
	if v := getenv("MATSYNC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
}

// PollInterval returns the configured poll cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// RequireAthlete validates the settings athlete-side commands need.
func (c Config) RequireAthlete() error {
	if c.Queue.AthleteToken == "" {
		return fmt.Errorf("missing athlete token: set MATSYNC_ATHLETE_TOKEN or queue.athlete_token in config")
	}
	return nil
}

// RequireCoach validates the settings coach-side commands need.
func (c Config) RequireCoach() error {
	if c.Queue.CoachToken == "" {
		return fmt.Errorf("missing coach token: set MATSYNC_COACH_TOKEN or queue.coach_token in config")
	}
	return nil
}
