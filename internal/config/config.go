// Package config loads engine configuration from a YAML file with
// environment-variable overrides for deployment settings. The loaded Config
// is passed explicitly into every component constructor; there is no ambient
// configuration state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Source    Source    `yaml:"source"`
	Sync      Sync      `yaml:"sync"`
	Analytics Analytics `yaml:"analytics"`
}

// Server holds HTTP listener settings.
type Server struct {
	Port string `yaml:"port"`
}

// Database holds the PostgreSQL connection string. Empty means the
// in-memory store is used and nothing persists across restarts.
type Database struct {
	URL string `yaml:"url"`
}

// Redis holds the optional analytics-cache settings.
type Redis struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// Source holds the terminal bridge connection settings. When BridgeURL is
// empty the engine runs permanently on the synthetic generator.
type Source struct {
	BridgeURL  string        `yaml:"bridge_url"`
	Account    int64         `yaml:"account"`
	Password   string        `yaml:"password"`
	Server     string        `yaml:"server"`
	Timeout    time.Duration `yaml:"timeout"`
	WindowDays int           `yaml:"window_days"`
}

// Sync holds the synchronization schedule.
type Sync struct {
	Interval    time.Duration `yaml:"interval"`
	HistoryDays int           `yaml:"history_days"`
}

// Analytics holds computation settings. Risk-score weights and bounds live
// here so the score is reproducible from explicit inputs, never from
// hard-coded constants.
type Analytics struct {
	Timezone     string      `yaml:"timezone"`
	RiskFreeRate float64     `yaml:"risk_free_rate"`
	Risk         RiskWeights `yaml:"risk"`
}

// RiskWeights configures the 0-100 composite risk score. Each component is
// normalized to [0,1] against its bound before weighting.
type RiskWeights struct {
	DrawdownWeight      float64 `yaml:"drawdown_weight"`
	ConcentrationWeight float64 `yaml:"concentration_weight"`
	LossStreakWeight    float64 `yaml:"loss_streak_weight"`
	DrawdownBound       float64 `yaml:"drawdown_bound"`    // drawdown fraction mapping to 1.0
	LossStreakBound     int     `yaml:"loss_streak_bound"` // streak length mapping to 1.0
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{Port: "8080"},
		Redis:  Redis{TTL: 30 * time.Second},
		Source: Source{
			Timeout:    15 * time.Second,
			WindowDays: 90,
		},
		Sync: Sync{
			Interval:    5 * time.Minute,
			HistoryDays: 90,
		},
		Analytics: Analytics{
			Timezone:     "UTC",
			RiskFreeRate: 0.02,
			Risk: RiskWeights{
				DrawdownWeight:      0.4,
				ConcentrationWeight: 0.3,
				LossStreakWeight:    0.3,
				DrawdownBound:       0.25,
				LossStreakBound:     10,
			},
		},
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults, then
// applies PORT, DATABASE_URL and REDIS_URL from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("config: sync interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Source.WindowDays <= 0 {
		return fmt.Errorf("config: source window_days must be positive, got %d", c.Source.WindowDays)
	}
	r := c.Analytics.Risk
	if r.DrawdownWeight < 0 || r.ConcentrationWeight < 0 || r.LossStreakWeight < 0 {
		return fmt.Errorf("config: risk weights must be non-negative")
	}
	if r.DrawdownWeight+r.ConcentrationWeight+r.LossStreakWeight == 0 {
		return fmt.Errorf("config: at least one risk weight must be positive")
	}
	if r.DrawdownBound <= 0 || r.LossStreakBound <= 0 {
		return fmt.Errorf("config: risk normalization bounds must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the reporting timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Analytics.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Analytics.Timezone, err)
	}
	return loc, nil
}
