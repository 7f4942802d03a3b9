// Package config loads floodgate settings from defaults, an optional YAML
// file, environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kylerisse/floodgate/pkg/gate"
)

type Config struct {
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Gate      GateConfig      `mapstructure:"gate"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"log"`
	Provision ProvisionConfig `mapstructure:"provision"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	AdminDB  string `mapstructure:"admin_db"`
	SSLMode  string `mapstructure:"sslmode"`
}

type GateConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Backoff          time.Duration `mapstructure:"backoff"`
	SkipPing         bool          `mapstructure:"skip_ping"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	DNSServer        string        `mapstructure:"dns_server"`
	Handshake        string        `mapstructure:"handshake"`
	RedisDB          int           `mapstructure:"redis_db"`
}

// RedisConfig holds the ACL credentials for the redis handshake. Both are
// empty by default so a passwordless server is not sent AUTH.
type RedisConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ProvisionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Database string `mapstructure:"database"`
}

type HTTPConfig struct {
	Addr          string        `mapstructure:"addr"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// setting ties a config key to its environment variable, flag and default.
type setting struct {
	key   string
	env   string
	flag  string
	usage string
	def   any
}

var settings = []setting{
	{"postgres.host", "POSTGRES_HOST", "host", "database host", "localhost"},
	{"postgres.port", "POSTGRES_PORT", "port", "database port", 5432},
	{"postgres.user", "POSTGRES_USER", "user", "database user", "docker"},
	{"postgres.password", "POSTGRES_PASSWORD", "password", "database password", "docker"},
	{"postgres.admin_db", "POSTGRES_ADMIN_DB", "admin-db", "database used for the handshake and provisioning", "postgres"},
	{"postgres.sslmode", "POSTGRES_SSLMODE", "sslmode", "libpq sslmode for the handshake", "prefer"},
	{"gate.max_attempts", "GATE_MAX_ATTEMPTS", "max-attempts", "number of connection attempts", 15},
	{"gate.backoff", "GATE_BACKOFF", "backoff", "wait between attempts", time.Second},
	{"gate.skip_ping", "GATE_SKIP_PING", "skip-ping", "skip the ICMP liveness ping", true},
	{"gate.ping_timeout", "GATE_PING_TIMEOUT", "ping-timeout", "liveness ping timeout", time.Second},
	{"gate.dial_timeout", "GATE_DIAL_TIMEOUT", "dial-timeout", "TCP connect timeout", 10 * time.Second},
	{"gate.handshake_timeout", "GATE_HANDSHAKE_TIMEOUT", "handshake-timeout", "application handshake timeout", 10 * time.Second},
	{"gate.dns_server", "GATE_DNS_SERVER", "dns-server", "DNS server host:port (empty uses the system resolver)", ""},
	{"gate.handshake", "GATE_HANDSHAKE", "handshake", "application handshake: postgres or redis", "postgres"},
	{"gate.redis_db", "REDIS_DB", "redis-db", "redis logical database for the redis handshake", 0},
	{"redis.user", "REDIS_USER", "redis-user", "redis ACL user for the redis handshake", ""},
	{"redis.password", "REDIS_PASSWORD", "redis-password", "redis password for the redis handshake", ""},
	{"log.level", "LOG_LEVEL", "log-level", "log level", "info"},
	{"log.format", "LOG_FORMAT", "log-format", "log format: text or json", "text"},
	{"provision.enabled", "PROVISION_ENABLED", "provision", "create the model database once the gate opens", false},
	{"provision.database", "PROVISION_DATABASE", "provision-database", "name of the provisioned database", "flood_damage"},
	{"http.addr", "HTTP_ADDR", "listen", "readiness server listen address", ":8080"},
	{"http.check_interval", "CHECK_INTERVAL", "interval", "readiness check interval", 30 * time.Second},
}

// Loader wraps a viper instance primed with defaults and environment bindings.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with every default and environment variable bound.
func NewLoader() *Loader {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		// BindEnv only fails without a key.
		_ = v.BindEnv(s.key, s.env)
	}
	return &Loader{v: v}
}

// RegisterFlags defines a flag for every setting on fs and binds it.
// Flags only take precedence when set explicitly.
func (l *Loader) RegisterFlags(fs *pflag.FlagSet) error {
	for _, s := range settings {
		switch def := s.def.(type) {
		case string:
			fs.String(s.flag, def, s.usage)
		case int:
			fs.Int(s.flag, def, s.usage)
		case bool:
			fs.Bool(s.flag, def, s.usage)
		case time.Duration:
			fs.Duration(s.flag, def, s.usage)
		default:
			return fmt.Errorf("unsupported default %T for %s", def, s.key)
		}
		if err := l.v.BindPFlag(s.key, fs.Lookup(s.flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", s.flag, err)
		}
	}
	return nil
}

// Load reads the optional YAML file at path, then unmarshals and validates.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Load reads configuration from the environment and an optional file.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Validate checks every setting the gate and server depend on.
func (c *Config) Validate() error {
	if err := c.Target().Validate(); err != nil {
		return err
	}
	if c.Gate.Handshake == "postgres" && c.Postgres.User == "" {
		return errors.New("database user is required")
	}
	if c.Postgres.AdminDB == "" {
		return errors.New("admin database is required")
	}
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if c.Gate.PingTimeout <= 0 || c.Gate.DialTimeout <= 0 || c.Gate.HandshakeTimeout <= 0 {
		return errors.New("gate timeouts must be positive")
	}
	switch c.Gate.Handshake {
	case "postgres", "redis":
	default:
		return fmt.Errorf("invalid handshake %q", c.Gate.Handshake)
	}
	if c.Gate.RedisDB < 0 {
		return fmt.Errorf("invalid redis db %d", c.Gate.RedisDB)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	if c.Provision.Enabled && c.Provision.Database == "" {
		return errors.New("provision database is required when provisioning is enabled")
	}
	if c.Provision.Enabled && c.Gate.Handshake != "postgres" {
		return errors.New("provisioning requires the postgres handshake")
	}
	if c.HTTP.CheckInterval <= 0 {
		return fmt.Errorf("invalid check interval %v", c.HTTP.CheckInterval)
	}
	return nil
}

// Target returns the connection target described by the postgres settings.
func (c *Config) Target() gate.Target {
	return gate.Target{
		Host:     c.Postgres.Host,
		Port:     c.Postgres.Port,
		Database: c.Postgres.AdminDB,
		User:     c.Postgres.User,
		Password: c.Postgres.Password,
	}
}

// Policy returns the gate retry policy.
func (c *Config) Policy() gate.RetryPolicy {
	return gate.RetryPolicy{
		MaxAttempts: c.Gate.MaxAttempts,
		Backoff:     c.Gate.Backoff,
		SkipPing:    c.Gate.SkipPing,
	}
}

// Settings returns the per-stage tuning for gate.Build.
func (c *Config) Settings() gate.Settings {
	return gate.Settings{
		Handshake:        c.Gate.Handshake,
		PingTimeout:      c.Gate.PingTimeout,
		DialTimeout:      c.Gate.DialTimeout,
		HandshakeTimeout: c.Gate.HandshakeTimeout,
		DNSServer:        c.Gate.DNSServer,
		SSLMode:          c.Postgres.SSLMode,
		RedisDB:          c.Gate.RedisDB,
		RedisUser:        c.Redis.User,
		RedisPassword:    c.Redis.Password,
	}
}
