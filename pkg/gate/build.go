package gate

import (
	"fmt"
	"time"

	"github.com/kylerisse/floodgate/pkg/check"
	"github.com/kylerisse/floodgate/pkg/check/ping"
	"github.com/kylerisse/floodgate/pkg/check/postgres"
	"github.com/kylerisse/floodgate/pkg/check/redis"
	"github.com/kylerisse/floodgate/pkg/check/tcp"
)

// Settings holds the per-stage tuning used by Build. Zero values leave
// the stage defaults in place.
type Settings struct {
	// Handshake selects the application-layer stage: "postgres" or "redis".
	Handshake        string
	PingTimeout      time.Duration
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	DNSServer        string
	SSLMode          string
	RedisDB          int
	// RedisUser and RedisPassword authenticate the redis handshake. The
	// target credentials belong to PostgreSQL and are not sent to redis.
	RedisUser        string
	RedisPassword    string
}

// DefaultRegistry returns a registry with every built-in stage type.
func DefaultRegistry() *check.Registry {
	reg := check.NewRegistry()
	for name, factory := range map[string]check.Factory{
		ping.TypeName:     ping.Factory,
		tcp.TypeName:      tcp.Factory,
		postgres.TypeName: postgres.Factory,
		redis.TypeName:    redis.Factory,
	} {
		// Names are distinct and factories non-nil, so Register cannot fail.
		_ = reg.Register(name, factory)
	}
	return reg
}

// StageConfigs returns the stage type names and factory configs for a
// target, in evaluation order. The liveness stage is left out when the
// policy skips it.
func StageConfigs(target Target, policy RetryPolicy, settings Settings) ([]string, []map[string]any, error) {
	handshake := settings.Handshake
	if handshake == "" {
		handshake = postgres.TypeName
	}

	var names []string
	var configs []map[string]any

	if !policy.SkipPing {
		cfg := map[string]any{"target": target.Host}
		if settings.PingTimeout > 0 {
			cfg["timeout"] = settings.PingTimeout
		}
		names = append(names, ping.TypeName)
		configs = append(configs, cfg)
	}

	tcpCfg := map[string]any{
		"target": target.Host,
		"port":   target.Port,
	}
	if settings.DialTimeout > 0 {
		tcpCfg["timeout"] = settings.DialTimeout
	}
	if settings.DNSServer != "" {
		tcpCfg["dns_server"] = settings.DNSServer
	}
	names = append(names, tcp.TypeName)
	configs = append(configs, tcpCfg)

	var hsCfg map[string]any
	switch handshake {
	case postgres.TypeName:
		hsCfg = map[string]any{
			"target":   target.Host,
			"port":     target.Port,
			"database": target.Database,
			"user":     target.User,
			"password": target.Password,
		}
		if settings.SSLMode != "" {
			hsCfg["sslmode"] = settings.SSLMode
		}
	case redis.TypeName:
		hsCfg = map[string]any{
			"target":   target.Host,
			"port":     target.Port,
			"user":     settings.RedisUser,
			"password": settings.RedisPassword,
			"db":       settings.RedisDB,
		}
	default:
		return nil, nil, fmt.Errorf("unknown handshake %q (want %q or %q)", handshake, postgres.TypeName, redis.TypeName)
	}
	if settings.HandshakeTimeout > 0 {
		hsCfg["timeout"] = settings.HandshakeTimeout
	}
	names = append(names, handshake)
	configs = append(configs, hsCfg)

	return names, configs, nil
}

// Build creates the stages for target from reg and wraps them in a Gate.
func Build(reg *check.Registry, target Target, policy RetryPolicy, settings Settings, opts ...Option) (*Gate, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}

	names, configs, err := StageConfigs(target, policy, settings)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}

	stages := make([]check.Check, 0, len(names))
	for i, name := range names {
		stage, err := reg.Create(name, configs[i])
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		stages = append(stages, stage)
	}

	return New(stages, policy, opts...)
}
