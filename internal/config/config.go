// Package config loads planner settings from yaml with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"lineplan/internal/assign"
	"lineplan/internal/catalog"
	"lineplan/internal/changeover"
	"lineplan/internal/opt"
	"lineplan/internal/routing"
	"lineplan/internal/schedule"
)

// ErrInvalidLineCount is the fatal configuration error for lines <= 0.
var ErrInvalidLineCount = assign.ErrInvalidLineCount

// CatalogConfig controls processing time resolution.
type CatalogConfig struct {
	UnitMinutes        float64 `yaml:"unit_minutes"`
	DefaultBaseMinutes float64 `yaml:"default_base_minutes"`
	CookTimesFile      string  `yaml:"cook_times_file,omitempty"`
}

// ChangeoverConfig controls the distance → minutes conversion.
type ChangeoverConfig struct {
	BaseMinutes          float64 `yaml:"base_minutes"`
	MaxAdditionalMinutes float64 `yaml:"max_additional_minutes"`
	DefaultMinutes       float64 `yaml:"default_minutes"`
	// MatrixFile is an optional CSV changeover matrix used instead of derived values.
	MatrixFile string `yaml:"matrix_file,omitempty"`
}

// RoutingConfig controls the routing solver path.
type RoutingConfig struct {
	TimeLimit        time.Duration `yaml:"time_limit"`
	IterationsLimit  int           `yaml:"iterations_limit,omitempty"`
	FallbackStrategy string        `yaml:"fallback_strategy"`
}

// EmbeddingsConfig selects an optional semantic distance provider.
type EmbeddingsConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model,omitempty"`
	ServerURL         string  `yaml:"server_url,omitempty"`
	Token             string  `yaml:"token,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BatchSize         int     `yaml:"batch_size"`
}

// ServerConfig holds service wiring.
type ServerConfig struct {
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"database_url,omitempty"`
	RedisURL      string `yaml:"redis_url,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
	PlansPerMin   int    `yaml:"plans_per_minute"`
}

// Config is the full planner configuration.
type Config struct {
	Lines             int              `yaml:"lines"`
	LineBudgetMinutes float64          `yaml:"line_budget_minutes"`
	Strategy          string           `yaml:"strategy"`
	ClusterCount      int              `yaml:"cluster_count,omitempty"`
	Catalog           CatalogConfig    `yaml:"catalog"`
	Changeover        ChangeoverConfig `yaml:"changeover"`
	Objective         schedule.Weights `yaml:"objective"`
	Search            opt.Config       `yaml:"search"`
	Routing           RoutingConfig    `yaml:"routing"`
	Embeddings        EmbeddingsConfig `yaml:"embeddings"`
	Server            ServerConfig     `yaml:"server"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Lines:             8,
		LineBudgetMinutes: 240,
		Strategy:          string(assign.WorkloadBalancedGreedy),
		Catalog: CatalogConfig{
			UnitMinutes:        catalog.DefaultUnitMinutes,
			DefaultBaseMinutes: catalog.DefaultBaseMinutes,
		},
		Changeover: ChangeoverConfig{
			BaseMinutes:          changeover.DefaultBaseMinutes,
			MaxAdditionalMinutes: changeover.DefaultMaxAdditionalMinutes,
			DefaultMinutes:       changeover.DefaultUnknownMinutes,
		},
		Objective: schedule.DefaultWeights(),
		Search:    opt.DefaultConfig(),
		Routing: RoutingConfig{
			TimeLimit:        30 * time.Second,
			FallbackStrategy: string(assign.WorkloadBalancedGreedy),
		},
		Embeddings: EmbeddingsConfig{Provider: "none", RequestsPerSecond: 2, BatchSize: 32},
		Server:     ServerConfig{Port: "8080", PlansPerMin: 30},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Server.RedisURL = v
	}
	if v := getenv("WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := getenv("PLANNER_LINES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PLANNER_LINES: %w", err)
		}
		c.Lines = n
	}
	if v := getenv("PLANNER_STRATEGY"); v != "" {
		c.Strategy = v
	}
	if v := getenv("EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := getenv("EMBEDDINGS_TOKEN"); v != "" {
		c.Embeddings.Token = v
	}
	return nil
}

// Validate rejects configurations the planner cannot run with.
func (c Config) Validate() error {
	if c.Lines <= 0 {
		return fmt.Errorf("config: %w: got %d", ErrInvalidLineCount, c.Lines)
	}
	if _, err := assign.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("config: strategy: %w", err)
	}
	if _, err := assign.ParseStrategy(c.Routing.FallbackStrategy); err != nil {
		return fmt.Errorf("config: routing fallback: %w", err)
	}
	w := c.Objective
	if w.MaxCompletion < 0 || w.IntervalVariance < 0 || w.TotalChangeover < 0 || w.LineBalance < 0 || w.TimeLimitPenalty < 0 {
		return fmt.Errorf("config: objective weights must be non-negative")
	}
	if c.Catalog.UnitMinutes < 0 || c.Changeover.BaseMinutes < 0 || c.Changeover.MaxAdditionalMinutes < 0 {
		return fmt.Errorf("config: time settings must be non-negative")
	}
	if c.Catalog.DefaultBaseMinutes <= 0 {
		return fmt.Errorf("config: catalog.default_base_minutes must be positive, got %v", c.Catalog.DefaultBaseMinutes)
	}
	switch c.Embeddings.Provider {
	case "", "none", "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown embeddings provider %q", c.Embeddings.Provider)
	}
	return nil
}

// CatalogOptions maps catalog settings.
func (c Config) CatalogOptions() catalog.Options {
	return catalog.Options{UnitMinutes: c.Catalog.UnitMinutes, DefaultBaseMinutes: c.Catalog.DefaultBaseMinutes}
}

// ChangeoverParams maps changeover settings.
func (c Config) ChangeoverParams() changeover.Params {
	return changeover.Params{
		BaseMinutes:          c.Changeover.BaseMinutes,
		MaxAdditionalMinutes: c.Changeover.MaxAdditionalMinutes,
		DefaultMinutes:       c.Changeover.DefaultMinutes,
	}
}

// RoutingOptions maps routing settings.
func (c Config) RoutingOptions() routing.Config {
	return routing.Config{
		HorizonMinutes:  c.LineBudgetMinutes,
		TimeLimit:       c.Routing.TimeLimit,
		IterationsLimit: c.Routing.IterationsLimit,
	}
}
