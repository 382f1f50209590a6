package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/execution-hub/agent-orchestrator/internal/application/monitor"
	"github.com/execution-hub/agent-orchestrator/internal/application/orchestrator"
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
)

// Config holds service configuration.
type Config struct {
	ServerAddr    string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string
	APITokenHash  string

	Parallel      bool
	MaxConcurrent int64
	InvokeTimeout time.Duration
	ContactPhone  string
	BusTick       time.Duration

	MonitorInterval     time.Duration
	HealthCheckInterval time.Duration
	BreakerThreshold    int
	RecoveryTimeout     time.Duration

	OfficeTimezone string
	Attorney       string

	Routing File
}

// File is the static routing and policy file named by ORCHESTRATOR_CONFIG.
type File struct {
	DefaultWorker string                         `yaml:"default_worker"`
	Rules         []orchestrator.IntentRule      `yaml:"rules"`
	Routes        map[string]string              `yaml:"routes"`
	Policies      map[string]agent.ScalingPolicy `yaml:"policies"`
	Alerts        []monitor.AlertRule            `yaml:"alerts"`
}

// Load reads configuration from environment. DATABASE_URL is optional; without
// it long-term memory stays in process.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),
		APITokenHash:  os.Getenv("API_TOKEN_HASH"),

		Parallel:      parseBool(getenv("PARALLEL_ENABLED", "true"), true),
		MaxConcurrent: int64(parseInt(getenv("MAX_CONCURRENT", "10"), orchestrator.DefaultMaxConcurrent)),
		InvokeTimeout: parseDuration(getenv("INVOKE_TIMEOUT", "30s"), orchestrator.DefaultInvokeTimeout),
		ContactPhone:  getenv("CONTACT_PHONE", orchestrator.DefaultContactPhone),
		BusTick:       parseDuration(getenv("BUS_TICK", "100ms"), 100*time.Millisecond),

		MonitorInterval:     parseDuration(getenv("MONITOR_INTERVAL", "30s"), 30*time.Second),
		HealthCheckInterval: parseDuration(getenv("HEALTH_CHECK_INTERVAL", "10s"), 10*time.Second),
		BreakerThreshold:    parseInt(getenv("BREAKER_THRESHOLD", "5"), agent.DefaultBreakerThreshold),
		RecoveryTimeout:     parseDuration(getenv("RECOVERY_TIMEOUT", "60s"), 60*time.Second),

		OfficeTimezone: getenv("OFFICE_TIMEZONE", "America/Los_Angeles"),
		Attorney:       os.Getenv("ATTORNEY_NAME"),
	}

	if path := os.Getenv("ORCHESTRATOR_CONFIG"); path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Routing = *f
	}
	return cfg, nil
}

// LoadFile parses a routing and policy file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read orchestrator config: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes and validates routing and policy YAML.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse orchestrator config: %w", err)
	}
	for i, r := range f.Rules {
		if r.Intent == "" || len(r.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d: intent and keywords are required", i)
		}
	}
	for name, p := range f.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
	}
	for _, a := range f.Alerts {
		if err := monitor.ValidateAlert(a); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Orchestrator returns the router configuration.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Parallel:      c.Parallel,
		MaxConcurrent: c.MaxConcurrent,
		InvokeTimeout: c.InvokeTimeout,
		ContactPhone:  c.ContactPhone,
		DefaultWorker: c.Routing.DefaultWorker,
		Rules:         c.Routing.Rules,
		Routes:        c.Routing.Routes,
	}
}

// Monitor returns the monitor configuration over its defaults.
func (c *Config) Monitor() monitor.Config {
	m := monitor.DefaultConfig()
	m.Interval = c.MonitorInterval
	m.HealthCheckInterval = c.HealthCheckInterval
	m.BreakerThreshold = c.BreakerThreshold
	m.RecoveryTimeout = c.RecoveryTimeout
	m.Policies = c.Routing.Policies
	if len(c.Routing.Alerts) > 0 {
		m.Alerts = c.Routing.Alerts
	}
	return m
}

// Location resolves the office time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.OfficeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
