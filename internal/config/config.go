package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type APIConfig struct {
	Addr        string
	DatabaseURL string
	StartupSeed bool
	OpenAIKey   string
	ImageModel  string
	MaxConns    int32
}

type BotConfig struct {
	DatabaseURL string
	TickEvery   time.Duration
	RunOnce     bool
}

// PhoneConfig drives the phone client. Values come from an optional YAML
// file and are then overridden by environment variables.
type PhoneConfig struct {
	APIBaseURL   string        `yaml:"api_base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	EpochYear    int           `yaml:"epoch_year"`
	Debug        bool          `yaml:"debug"`
}

const (
	defaultAPIBaseURL   = "http://localhost:8080"
	defaultPollInterval = 30 * time.Second
	defaultEpochYear    = 2024
)

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("BANKSIM_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:        addr,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StartupSeed: envBoolDefault("BANKSIM_STARTUP_SEED", true),
		OpenAIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		ImageModel:  envDefault("BANKSIM_IMAGE_MODEL", "dall-e-2"),
		MaxConns:    int32(envIntDefault("BANKSIM_DB_MAX_CONNS", 20)),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadBotFromEnv() (BotConfig, error) {
	cfg := BotConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TickEvery:   envDurationDefault("BANKSIM_BOT_TICK_EVERY", defaultPollInterval),
		RunOnce:     envBoolDefault("BANKSIM_BOT_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = defaultPollInterval
	}
	return cfg, nil
}

// DefaultPhoneConfigPath is BANKSIM_CONFIG, or config.yaml in the phone's
// home directory.
func DefaultPhoneConfigPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv("BANKSIM_CONFIG")); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("BANKSIM_HOME")); v != "" {
		return filepath.Join(v, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".banksim", "config.yaml"), nil
}

// LoadPhone reads path (a missing file is fine) and applies env overrides.
func LoadPhone(path string) (PhoneConfig, error) {
	cfg := PhoneConfig{
		APIBaseURL:   defaultAPIBaseURL,
		PollInterval: defaultPollInterval,
		EpochYear:    defaultEpochYear,
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, err
		}
	}

	cfg.APIBaseURL = envDefault("BANKSIM_API_BASE_URL", cfg.APIBaseURL)
	cfg.PollInterval = envDurationDefault("BANKSIM_POLL_INTERVAL", cfg.PollInterval)
	cfg.Debug = envBoolDefault("BANKSIM_DEBUG", cfg.Debug)

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.EpochYear <= 0 {
		cfg.EpochYear = defaultEpochYear
	}
	return cfg, nil
}

func LoadPhoneDefault() (PhoneConfig, error) {
	path, err := DefaultPhoneConfigPath()
	if err != nil {
		return PhoneConfig{}, err
	}
	return LoadPhone(path)
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
