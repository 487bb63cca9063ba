// Package config loads application configuration the way the teacher does:
// environment variables with sane defaults, optionally overlaid with a YAML
// file for the larger structured surface (per-platform windows, optimizer
// thresholds, identity pool sizes) that doesn't fit comfortably in env vars.
// Env vars always win over file values.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/clipcast/engine/internal/domain"
)

// PlatformConfig is one platform's publishing window, mirroring
// domain.PlatformWindow. Retry bounds are not per platform; they live in
// WorkerConfig.
type PlatformConfig struct {
	WindowStartHour int `yaml:"window_start_hour"`
	WindowEndHour   int `yaml:"window_end_hour"`
	MinGapMinutes   int `yaml:"min_gap_minutes"`
}

// OptimizerConfig mirrors optimizer.Config's tunables (kept as plain fields
// here rather than importing the application package, to avoid a config ->
// application import cycle; cmd/server translates this into optimizer.Config
// at wiring time).
type OptimizerConfig struct {
	MinConfidence     float64 `yaml:"min_confidence"`
	AutoConfidence    float64 `yaml:"auto_confidence"`
	MaxDailyChangePct float64 `yaml:"max_daily_change_pct"`
	AutoMaxChangePct  float64 `yaml:"auto_max_change_pct"`
	EmbargoHours      float64 `yaml:"embargo_hours"`
	MinSpendUSD       float64 `yaml:"min_spend_usd"`
	MinImpressions    int64   `yaml:"min_impressions"`
	CooldownHours     float64 `yaml:"cooldown_hours"`
	MaxPerCampaign    int     `yaml:"max_per_campaign"`
	MaxPerRun         int     `yaml:"max_per_run"`
	Mode              string  `yaml:"mode"` // "suggest" or "auto"
}

// WorkerConfig mirrors worker.Config's tunables.
type WorkerConfig struct {
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds"`
	MaxRetries            int `yaml:"max_retries"`
}

// IdentityConfig sizes the identity pools the Identity Router (C10) draws
// from per platform (spec.md §4.10).
type IdentityConfig struct {
	ProxyPoolSize       int `yaml:"proxy_pool_size"`
	FingerprintPoolSize int `yaml:"fingerprint_pool_size"`
}

// ControlConfig mirrors control.Config's tunables.
type ControlConfig struct {
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	RestartCooldownSeconds   int `yaml:"restart_cooldown_seconds"`
}

// Config is the application's fully resolved configuration.
type Config struct {
	Port        string `yaml:"-"`
	LogLevel    string `yaml:"-"`
	DatabaseDSN string `yaml:"-"`
	JWTSecret   string `yaml:"-"`

	Platforms map[string]PlatformConfig `yaml:"platforms"`
	Optimizer OptimizerConfig           `yaml:"optimizer"`
	Worker    WorkerConfig              `yaml:"worker"`
	Identity  IdentityConfig            `yaml:"identity"`
	Control   ControlConfig             `yaml:"control"`
}

func defaults() Config {
	return Config{
		Port:        "8080",
		LogLevel:    "info",
		DatabaseDSN: "",
		Platforms: map[string]PlatformConfig{
			string(domain.PlatformTikTok):    {WindowStartHour: 8, WindowEndHour: 22, MinGapMinutes: 30},
			string(domain.PlatformInstagram): {WindowStartHour: 9, WindowEndHour: 21, MinGapMinutes: 45},
			string(domain.PlatformYouTube):   {WindowStartHour: 10, WindowEndHour: 20, MinGapMinutes: 60},
		},
		Optimizer: OptimizerConfig{
			MinConfidence:     0.65,
			AutoConfidence:    0.75,
			MaxDailyChangePct: 0.20,
			AutoMaxChangePct:  0.10,
			EmbargoHours:      48,
			MinSpendUSD:       100,
			MinImpressions:    1000,
			CooldownHours:     24,
			MaxPerCampaign:    5,
			MaxPerRun:         50,
			Mode:              "suggest",
		},
		Worker: WorkerConfig{
			PollIntervalSeconds:    5,
			ProviderTimeoutSeconds: 30,
			MaxRetries:             5,
		},
		Identity: IdentityConfig{
			ProxyPoolSize:       20,
			FingerprintPoolSize: 20,
		},
		Control: ControlConfig{
			HeartbeatIntervalSeconds: 60,
			RestartCooldownSeconds:   300,
		},
	}
}

// Load reads environment variables, overlaying a YAML file named by
// CONFIG_PATH (if set and present) for the structured fields env vars don't
// cover, then applying env-var overrides on top so a deployment can always
// override a specific value without editing the file.
func Load() *Config {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if buf, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(buf, &cfg); err != nil {
				log.Fatal().Err(err).Str("path", path).Msg("error parsing YAML config overlay")
			}
		} else if !os.IsNotExist(err) {
			log.Fatal().Err(err).Str("path", path).Msg("error reading YAML config overlay")
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	if mode := os.Getenv("OPTIMIZER_MODE"); mode != "" {
		cfg.Optimizer.Mode = mode
	}

	return &cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetPortInt returns the port as an integer.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}

// PlatformWindow resolves a platform's domain.PlatformWindow from config,
// falling back to zero values (MaxSlotsPerDay() then reports 0 capacity)
// when the platform isn't configured.
func (c *Config) PlatformWindow(platform domain.Platform) domain.PlatformWindow {
	p, ok := c.Platforms[string(platform)]
	if !ok {
		return domain.PlatformWindow{Platform: platform}
	}
	return domain.PlatformWindow{
		Platform:        platform,
		WindowStartHour: p.WindowStartHour,
		WindowEndHour:   p.WindowEndHour,
		MinGapMinutes:   p.MinGapMinutes,
	}
}

func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalSeconds) * time.Second
}

func (c *Config) WorkerProviderTimeout() time.Duration {
	return time.Duration(c.Worker.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) ControlHeartbeatInterval() time.Duration {
	return time.Duration(c.Control.HeartbeatIntervalSeconds) * time.Second
}

func (c *Config) ControlRestartCooldown() time.Duration {
	return time.Duration(c.Control.RestartCooldownSeconds) * time.Second
}
