package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (FRONTDESK_SERVER_PORT, ...).
const EnvPrefix = "FRONTDESK_"

// Config is the root configuration for frontdesk.
type Config struct {
	General    GeneralConfig    `json:"general" yaml:"general" envPrefix:"GENERAL_"`
	Server     ServerConfig     `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Storage    StorageConfig    `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Dedupe     DedupeConfig     `json:"dedupe" yaml:"dedupe" envPrefix:"DEDUPE_"`
	Channels   ChannelsConfig   `json:"channels" yaml:"channels" envPrefix:"CHANNELS_"`
	Feed       FeedConfig       `json:"feed" yaml:"feed" envPrefix:"FEED_"`
	Escalation EscalationConfig `json:"escalation" yaml:"escalation" envPrefix:"ESCALATION_"`
	Publish    PublishConfig    `json:"publish" yaml:"publish" envPrefix:"PUBLISH_"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

type GeneralConfig struct {
	DataDir   string `json:"dataDir" yaml:"dataDir" env:"DATA_DIR"`
	LogLevel  string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `json:"logFormat" yaml:"logFormat" env:"LOG_FORMAT"` // "text" | "json"
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"`
}

type ServerConfig struct {
	Host                   string   `json:"host" yaml:"host" env:"HOST"`
	Port                   int      `json:"port" yaml:"port" env:"PORT"`
	APIPrefix              string   `json:"apiPrefix" yaml:"apiPrefix" env:"API_PREFIX"`
	RequestTimeoutSeconds  int      `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds" env:"REQUEST_TIMEOUT_SECONDS"`
	ShutdownTimeoutSeconds int      `json:"shutdownTimeoutSeconds" yaml:"shutdownTimeoutSeconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`
	AllowedOrigins         []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS"`
}

type StorageConfig struct {
	Driver       string `json:"driver" yaml:"driver" env:"DRIVER"` // "sqlite" | "mysql"
	Path         string `json:"path,omitempty" yaml:"path,omitempty" env:"PATH"`
	DSN          string `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"DSN"`
	MaxOpenConns int    `json:"maxOpenConns,omitempty" yaml:"maxOpenConns,omitempty" env:"MAX_OPEN_CONNS"`
	MachineID    uint16 `json:"machineId,omitempty" yaml:"machineId,omitempty" env:"MACHINE_ID"`
}

type DedupeConfig struct {
	Backend  string      `json:"backend" yaml:"backend" env:"BACKEND"` // "memory" | "redis" | "off"
	TTLHours int         `json:"ttlHours" yaml:"ttlHours" env:"TTL_HOURS"`
	Redis    RedisConfig `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty" env:"ADDR"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty" env:"PASSWORD"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty" env:"DB"`
	KeyPrefix string `json:"keyPrefix,omitempty" yaml:"keyPrefix,omitempty" env:"KEY_PREFIX"`
}

type ChannelsConfig struct {
	WhatsApp  WhatsAppConfig `json:"whatsapp" yaml:"whatsapp" envPrefix:"WHATSAPP_"`
	Instagram ChannelConfig  `json:"instagram" yaml:"instagram" envPrefix:"INSTAGRAM_"`
	Email     ChannelConfig  `json:"email" yaml:"email" envPrefix:"EMAIL_"`
	Review    ChannelConfig  `json:"review" yaml:"review" envPrefix:"REVIEW_"`
}

// ChannelConfig holds the inbound webhook settings shared by every channel.
// An empty AppSecret disables signature checking.
type ChannelConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	VerifyToken string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty" env:"VERIFY_TOKEN"`
	AppSecret   string `json:"appSecret,omitempty" yaml:"appSecret,omitempty" env:"APP_SECRET"`
}

type WhatsAppConfig struct {
	ChannelConfig `yaml:",inline"`
	AccessToken   string `json:"accessToken,omitempty" yaml:"accessToken,omitempty" env:"ACCESS_TOKEN"`
	PhoneNumberID string `json:"phoneNumberId,omitempty" yaml:"phoneNumberId,omitempty" env:"PHONE_NUMBER_ID"`
	BaseURL       string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty" env:"BASE_URL"`
}

// Get returns the inbound settings for a channel name.
func (c ChannelsConfig) Get(name string) (ChannelConfig, bool) {
	switch name {
	case "whatsapp":
		return c.WhatsApp.ChannelConfig, true
	case "instagram":
		return c.Instagram, true
	case "email":
		return c.Email, true
	case "review":
		return c.Review, true
	}
	return ChannelConfig{}, false
}

type FeedConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	HistorySize int  `json:"historySize" yaml:"historySize" env:"HISTORY_SIZE"`
	QueueSize   int  `json:"queueSize" yaml:"queueSize" env:"QUEUE_SIZE"`
}

type EscalationConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Token       string        `json:"token,omitempty" yaml:"token,omitempty" env:"TOKEN"`
	ChatIDs     FlexInt64List `json:"chatIds,omitempty" yaml:"chatIds,omitempty" env:"CHAT_IDS"`
	MinPriority string        `json:"minPriority" yaml:"minPriority" env:"MIN_PRIORITY"`
	ParseMode   string        `json:"parseMode,omitempty" yaml:"parseMode,omitempty" env:"PARSE_MODE"`
}

type PublishConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled" env:"ENABLED"`
	NameServers []string `json:"nameServers,omitempty" yaml:"nameServers,omitempty" env:"NAME_SERVERS"`
	Group       string   `json:"group,omitempty" yaml:"group,omitempty" env:"GROUP"`
	Topic       string   `json:"topic,omitempty" yaml:"topic,omitempty" env:"TOPIC"`
	AccessKey   string   `json:"accessKey,omitempty" yaml:"accessKey,omitempty" env:"ACCESS_KEY"`
	SecretKey   string   `json:"secretKey,omitempty" yaml:"secretKey,omitempty" env:"SECRET_KEY"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Path    string `json:"path" yaml:"path" env:"PATH"`
	Runtime bool   `json:"runtime" yaml:"runtime" env:"RUNTIME"` // Go/process collectors
}

type TracingConfig struct {
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"ENDPOINT"`
	ServiceName string  `json:"serviceName" yaml:"serviceName" env:"SERVICE_NAME"`
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio" env:"SAMPLE_RATIO"`
}

// FlexInt64List is a []int64 that also accepts numeric strings, so chat ids
// can come from ${VAR} expansion inside quoted JSON or a comma-separated env var.
type FlexInt64List []int64

func (f *FlexInt64List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		var n int64
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("chat id %s: not a number or string", item)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("chat id %q: %w", s, err)
		}
		out = append(out, n)
	}
	*f = out
	return nil
}

func (f *FlexInt64List) UnmarshalYAML(node *yaml.Node) error {
	var ss []string
	if err := node.Decode(&ss); err != nil {
		return err
	}
	return f.UnmarshalText([]byte(strings.Join(ss, ",")))
}

// UnmarshalText parses a comma-separated list.
func (f *FlexInt64List) UnmarshalText(text []byte) error {
	out := FlexInt64List{}
	for _, part := range strings.Split(string(text), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("chat id %q: %w", part, err)
		}
		out = append(out, n)
	}
	*f = out
	return nil
}

// DefaultConfigDir returns the default config directory (~/.frontdesk).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".frontdesk"
	}
	return filepath.Join(home, ".frontdesk")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML file, expands ${VAR} references, layers it over
// Defaults, applies FRONTDESK_* overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg fields from FRONTDESK_* environment variables.
// Unset variables leave the current value in place.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset VAR
// without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML or JSON depending on the file extension.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
		errs = append(errs, "server.apiPrefix must start with /")
	}
	if cfg.Server.RequestTimeoutSeconds < 1 {
		errs = append(errs, "server.requestTimeoutSeconds must be >= 1")
	}

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, "storage.path is required for the sqlite driver")
		}
	case "mysql":
		if cfg.Storage.DSN == "" {
			errs = append(errs, "storage.dsn is required for the mysql driver")
		}
	default:
		errs = append(errs, "storage.driver must be one of: sqlite, mysql")
	}

	switch cfg.Dedupe.Backend {
	case "memory", "off":
	case "redis":
		if cfg.Dedupe.Redis.Addr == "" {
			errs = append(errs, "dedupe.redis.addr is required for the redis backend")
		}
	default:
		errs = append(errs, "dedupe.backend must be one of: memory, redis, off")
	}
	if cfg.Dedupe.TTLHours < 1 {
		errs = append(errs, "dedupe.ttlHours must be >= 1")
	}

	if cfg.Feed.HistorySize < 0 {
		errs = append(errs, "feed.historySize must be >= 0")
	}

	if cfg.Escalation.Enabled {
		if cfg.Escalation.Token == "" {
			errs = append(errs, "escalation.token is required when escalation is enabled")
		}
		if len(cfg.Escalation.ChatIDs) == 0 {
			errs = append(errs, "escalation.chatIds needs at least one chat")
		}
	}
	switch cfg.Escalation.MinPriority {
	case "normal", "urgent", "critical":
	default:
		errs = append(errs, "escalation.minPriority must be one of: normal, urgent, critical")
	}

	if cfg.Publish.Enabled {
		if len(cfg.Publish.NameServers) == 0 {
			errs = append(errs, "publish.nameServers is required when publishing is enabled")
		}
		if cfg.Publish.Group == "" || cfg.Publish.Topic == "" {
			errs = append(errs, "publish.group and publish.topic are required when publishing is enabled")
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New("config validation errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
