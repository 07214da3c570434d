// Package config handles configuration loading and runtime updates for the
// daemon's settings, playbooks, and customer inventory files.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings is the top-level daemon configuration.
type Settings struct {
	mu sync.RWMutex

	POP          string               `yaml:"pop"`
	Mode         OperationMode        `yaml:"mode"`
	HTTP         HTTPConfig           `yaml:"http"`
	BGP          BGPConfig            `yaml:"bgp"`
	Guardrails   GuardrailsConfig     `yaml:"guardrails"`
	Quotas       QuotasConfig         `yaml:"quotas"`
	Timers       TimersConfig         `yaml:"timers"`
	Escalation   EscalationConfig     `yaml:"escalation"`
	Storage      StorageConfig        `yaml:"storage"`
	Redis        RedisConfig          `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Safelist     SafelistConfig       `yaml:"safelist"`
	Shutdown     ShutdownConfig       `yaml:"shutdown"`
	Alerting     AlertingConfig       `yaml:"alerting"`
}

// AlertingConfig is the webhook fan-out configuration (L12): zero or more
// destinations, each with its own credential shape, plus an optional
// allowlist of event types to send (empty means send everything).
type AlertingConfig struct {
	Destinations []DestinationConfig `yaml:"destinations"`
	Events       []string            `yaml:"events"`
}

// DestinationConfig is a tagged union over the supported webhook providers.
// Only the fields relevant to Type are populated; yaml.v3 unmarshals all
// keys present in the document regardless of Type; the webhook package
// reads only the fields its Type implies.
type DestinationConfig struct {
	Type       string            `yaml:"type"`
	WebhookURL string            `yaml:"webhook_url"`
	Channel    string            `yaml:"channel"`
	BotToken   string            `yaml:"bot_token"`
	ChatID     string            `yaml:"chat_id"`
	RoutingKey string            `yaml:"routing_key"`
	EventsURL  string            `yaml:"events_url"`
	APIKey     string            `yaml:"api_key"`
	Region     string            `yaml:"region"`
	URL        string            `yaml:"url"`
	Secret     string            `yaml:"secret"`
	Headers    map[string]string `yaml:"headers"`
}

type OperationMode string

const (
	ModeDryRun   OperationMode = "dry-run"
	ModeEnforced OperationMode = "enforced"
)

type HTTPConfig struct {
	Listen    string          `yaml:"listen"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type AuthConfig struct {
	Mode           AuthMode `yaml:"mode"`
	BearerTokenEnv string   `yaml:"bearer_token_env"`
}

type AuthMode string

const (
	AuthMTLS   AuthMode = "mtls"
	AuthBearer AuthMode = "bearer"
	AuthNone   AuthMode = "none"
)

type RateLimitConfig struct {
	EventsPerSecond uint32 `yaml:"events_per_second"`
	Burst           uint32 `yaml:"burst"`
}

type BGPConfig struct {
	Mode      BGPMode       `yaml:"mode"`
	GRPCAddr  string        `yaml:"gobgp_grpc"`
	LocalASN  uint32        `yaml:"local_asn"`
	RouterID  string        `yaml:"router_id"`
	Neighbors []BGPNeighbor `yaml:"neighbors"`
}

type BGPMode string

const (
	BGPModeSidecar BGPMode = "sidecar"
	BGPModeMock    BGPMode = "mock"
)

type BGPNeighbor struct {
	Name          string   `yaml:"name"`
	Address       string   `yaml:"address"`
	PeerASN       uint32   `yaml:"peer_asn"`
	PasswordEnv   string   `yaml:"password_env"`
	AfiSafi       []string `yaml:"afi_safi"`
}

type GuardrailsConfig struct {
	RequireTTL           bool  `yaml:"require_ttl"`
	DstPrefixMinLen      uint8 `yaml:"dst_prefix_minlen"`
	DstPrefixMaxLen      uint8 `yaml:"dst_prefix_maxlen"`
	DstPrefixMinLenV6    *uint8 `yaml:"dst_prefix_minlen_v6"`
	DstPrefixMaxLenV6    *uint8 `yaml:"dst_prefix_maxlen_v6"`
	MaxPorts             int   `yaml:"max_ports"`
}

type QuotasConfig struct {
	MaxActivePerCustomer    uint32 `yaml:"max_active_per_customer"`
	MaxActivePerPOP         uint32 `yaml:"max_active_per_pop"`
	MaxActiveGlobal         uint32 `yaml:"max_active_global"`
	MaxNewPerMinute         uint32 `yaml:"max_new_per_minute"`
	MaxAnnouncementsPerPeer uint32 `yaml:"max_announcements_per_peer"`
}

type TimersConfig struct {
	DefaultTTLSeconds               uint32 `yaml:"default_ttl_seconds"`
	MinTTLSeconds                   uint32 `yaml:"min_ttl_seconds"`
	MaxTTLSeconds                   uint32 `yaml:"max_ttl_seconds"`
	CorrelationWindowSeconds        uint32 `yaml:"correlation_window_seconds"`
	ReconciliationIntervalSeconds   uint32 `yaml:"reconciliation_interval_seconds"`
	QuietPeriodAfterWithdrawSeconds uint32 `yaml:"quiet_period_after_withdraw_seconds"`
}

type EscalationConfig struct {
	Enabled                     bool    `yaml:"enabled"`
	MinPersistenceSeconds       uint32  `yaml:"min_persistence_seconds"`
	MinConfidence               float64 `yaml:"min_confidence"`
	MaxEscalatedDurationSeconds uint32  `yaml:"max_escalated_duration_seconds"`
}

type StorageConfig struct {
	Driver StorageDriver `yaml:"driver"`
	DSN    string        `yaml:"dsn"`
}

type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

// RedisConfig configures the optional safelist read-through cache
// (internal/repository/cache). Addr empty means the cache is disabled and
// the repository is used directly.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds uint32 `yaml:"ttl_seconds"`
}

type ObservabilityConfig struct {
	LogLevel      string `yaml:"log_level"`
	AuditLogPath  string `yaml:"audit_log_path"`
	MetricsListen string `yaml:"metrics_listen"`
}

type SafelistConfig struct {
	Prefixes []string `yaml:"prefixes"`
}

type ShutdownConfig struct {
	DrainTimeoutSeconds   uint32 `yaml:"drain_timeout_seconds"`
	PreserveAnnouncements bool   `yaml:"preserve_announcements"`
}

// DefaultSettings returns the baseline merged before a file is unmarshalled
// on top of it, so a config file only needs to specify overrides.
func DefaultSettings() *Settings {
	return &Settings{
		Mode: ModeDryRun,
		HTTP: HTTPConfig{
			Listen: "0.0.0.0:8080",
			Auth:   AuthConfig{Mode: AuthNone},
			RateLimit: RateLimitConfig{
				EventsPerSecond: 100,
				Burst:           500,
			},
		},
		BGP: BGPConfig{Mode: BGPModeSidecar},
		Guardrails: GuardrailsConfig{
			RequireTTL:      true,
			DstPrefixMinLen: 32,
			DstPrefixMaxLen: 32,
			MaxPorts:        8,
		},
		Quotas: QuotasConfig{
			MaxActivePerCustomer:    5,
			MaxActivePerPOP:         200,
			MaxActiveGlobal:         500,
			MaxNewPerMinute:         30,
			MaxAnnouncementsPerPeer: 100,
		},
		Timers: TimersConfig{
			DefaultTTLSeconds:             120,
			MinTTLSeconds:                 30,
			MaxTTLSeconds:                 1800,
			CorrelationWindowSeconds:      300,
			ReconciliationIntervalSeconds: 30,
			QuietPeriodAfterWithdrawSeconds: 120,
		},
		Escalation: EscalationConfig{
			Enabled:                     true,
			MinPersistenceSeconds:       120,
			MinConfidence:               0.7,
			MaxEscalatedDurationSeconds: 1800,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			MetricsListen: "0.0.0.0:9100",
		},
		Shutdown: ShutdownConfig{
			DrainTimeoutSeconds:   30,
			PreserveAnnouncements: true,
		},
	}
}

// LoadSettings loads and validates the daemon settings from a YAML file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	cfg := DefaultSettings()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

func (c *Settings) Validate() error {
	if c.POP == "" {
		return fmt.Errorf("pop is required")
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	switch c.Mode {
	case ModeDryRun, ModeEnforced:
	default:
		return fmt.Errorf("invalid mode: %s (must be dry-run or enforced)", c.Mode)
	}
	return nil
}

// GetRateLimit returns the current HTTP rate limit config (thread-safe).
func (c *Settings) GetRateLimit() RateLimitConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.HTTP.RateLimit
}

// SetRateLimit updates the HTTP rate limit config (thread-safe).
func (c *Settings) SetRateLimit(rl RateLimitConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HTTP.RateLimit = rl
}

func (c *Settings) DryRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mode == ModeDryRun
}
