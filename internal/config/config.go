package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MIRADOR_INVESTIGATOR_"

// Config captures the settings required to run investigations and the service surfaces.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Data     DataConfig     `yaml:"data"`
	Session  SessionConfig  `yaml:"session"`
	Roles    RolesConfig    `yaml:"roles"`
	Provider ProviderConfig `yaml:"provider"`
	Rules    RulesConfig    `yaml:"rules"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	Output   OutputConfig   `yaml:"output"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Patterns PatternsConfig `yaml:"patterns"`
}

// ServerConfig controls gRPC, metrics and MCP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	MCPAddress      string        `yaml:"mcpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DataConfig points at the telemetry dataset directory.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// SessionConfig bounds a single investigation.
type SessionConfig struct {
	MaxIterations int           `yaml:"maxIterations"`
	MaxMessages   int           `yaml:"maxMessages"`
	WindowBefore  time.Duration `yaml:"windowBefore"`
	WindowAfter   time.Duration `yaml:"windowAfter"`
	TurnTimeout   time.Duration `yaml:"turnTimeout"`
	ToolTimeout   time.Duration `yaml:"toolTimeout"`
	RoleRetries   int           `yaml:"roleRetries"`
	MaxToolRounds int           `yaml:"maxToolRounds"`
	Deadline      time.Duration `yaml:"deadline"`
	Parallelism   int           `yaml:"parallelism"`
}

// RolesConfig selects the backend that generates role output.
type RolesConfig struct {
	Backend    string `yaml:"backend"`
	ReplayPath string `yaml:"replayPath"`
}

// ProviderConfig configures an OpenAI-compatible chat completion endpoint.
type ProviderConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"apiKey"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"maxTokens"`
	Retries   int           `yaml:"retries"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls caching of tool results.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ToolTTL      time.Duration `yaml:"toolTTL"`
	PatternsTTL  time.Duration `yaml:"patternsTTL"`
}

// HistoryConfig configures where RCA records are indexed.
type HistoryConfig struct {
	SQLitePath string         `yaml:"sqlitePath"`
	Weaviate   WeaviateConfig `yaml:"weaviate"`
}

// WeaviateConfig configures the similarity search cluster.
type WeaviateConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OutputConfig controls where RCA artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// TracingConfig configures OTLP span export. Empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// PatternsConfig schedules failure-pattern mining in serve mode.
type PatternsConfig struct {
	Schedule string `yaml:"schedule"`
	MinCount int    `yaml:"minCount"`
	Lookback int    `yaml:"lookback"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would leave a session unbounded.
func (c *Config) Validate() error {
	switch {
	case c.Session.MaxMessages <= 0:
		return fmt.Errorf("session.maxMessages must be positive")
	case c.Session.MaxIterations <= 0:
		return fmt.Errorf("session.maxIterations must be positive")
	case c.Session.RoleRetries < 0:
		return fmt.Errorf("session.roleRetries must not be negative")
	case c.Session.WindowBefore <= 0 || c.Session.WindowAfter <= 0:
		return fmt.Errorf("session.windowBefore and session.windowAfter must be positive")
	}
	switch c.Roles.Backend {
	case "heuristic", "openai", "replay":
	default:
		return fmt.Errorf("roles.backend %q is not one of heuristic, openai, replay", c.Roles.Backend)
	}
	if c.Roles.Backend == "replay" && c.Roles.ReplayPath == "" {
		return fmt.Errorf("roles.replayPath is required for the replay backend")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			MCPAddress:      ":8090",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Data:    DataConfig{Dir: "data"},
		Session: SessionConfig{
			MaxIterations: 3,
			MaxMessages:   20,
			WindowBefore:  60 * time.Minute,
			WindowAfter:   30 * time.Minute,
			TurnTimeout:   60 * time.Second,
			ToolTimeout:   10 * time.Second,
			RoleRetries:   2,
			MaxToolRounds: 4,
			Deadline:      5 * time.Minute,
			Parallelism:   4,
		},
		Roles: RolesConfig{Backend: "heuristic"},
		Provider: ProviderConfig{
			Endpoint:  "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 2048,
			Retries:   3,
			Timeout:   60 * time.Second,
		},
		Rules: RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			Backend:      "memory",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ToolTTL:      5 * time.Minute,
			PatternsTTL:  10 * time.Minute,
		},
		History: HistoryConfig{
			Weaviate: WeaviateConfig{Timeout: 5 * time.Second},
		},
		Output:   OutputConfig{Dir: "output"},
		Patterns: PatternsConfig{Schedule: "@every 15m", MinCount: 2, Lookback: 500},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "METRICS_ADDRESS")
	setString(&cfg.Server.MCPAddress, "MCP_ADDRESS")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	setString(&cfg.Data.Dir, "DATA_DIR")

	setInt(&cfg.Session.MaxIterations, "MAX_ITERATIONS")
	setInt(&cfg.Session.MaxMessages, "MAX_MESSAGES")
	setInt(&cfg.Session.RoleRetries, "ROLE_RETRIES")
	setInt(&cfg.Session.Parallelism, "PARALLELISM")
	setDuration(&cfg.Session.TurnTimeout, "TURN_TIMEOUT")
	setDuration(&cfg.Session.ToolTimeout, "TOOL_TIMEOUT")
	setDuration(&cfg.Session.Deadline, "SESSION_DEADLINE")

	setString(&cfg.Roles.Backend, "ROLE_BACKEND")
	setString(&cfg.Roles.ReplayPath, "REPLAY_PATH")

	setString(&cfg.Provider.Endpoint, "PROVIDER_ENDPOINT")
	setString(&cfg.Provider.Model, "PROVIDER_MODEL")
	setString(&cfg.Provider.APIKey, "PROVIDER_API_KEY")
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	setString(&cfg.Rules.Path, "RULES_PATH")

	setBool(&cfg.Cache.Enabled, "CACHE_ENABLED")
	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.Addr, "CACHE_ADDR")
	setString(&cfg.Cache.Username, "CACHE_USERNAME")
	setString(&cfg.Cache.Password, "CACHE_PASSWORD")
	setInt(&cfg.Cache.DB, "CACHE_DB")
	setBool(&cfg.Cache.TLS, "CACHE_TLS")
	setDuration(&cfg.Cache.ToolTTL, "CACHE_TOOL_TTL")

	setString(&cfg.History.SQLitePath, "HISTORY_SQLITE_PATH")
	setString(&cfg.History.Weaviate.Endpoint, "WEAVIATE_URL")
	setString(&cfg.History.Weaviate.APIKey, "WEAVIATE_API_KEY")

	setString(&cfg.Output.Dir, "OUTPUT_DIR")
	setString(&cfg.Tracing.Endpoint, "OTLP_ENDPOINT")
	setString(&cfg.Patterns.Schedule, "PATTERNS_SCHEDULE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
