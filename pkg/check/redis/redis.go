// Package redis implements an application-layer handshake stage for
// Redis-backed dependencies. It opens a single-connection client, sends
// PING, and closes the client before returning.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kylerisse/floodgate/pkg/check"
)

const (
	// TypeName is the registered name for this stage type.
	TypeName = "redis"

	// DefaultTimeout bounds dialing and the PING round trip.
	DefaultTimeout = 5 * time.Second
)

// Check implements check.Check with a Redis PING.
type Check struct {
	host     string
	port     int
	user     string
	password string
	db       int
	timeout  time.Duration
}

// Option is a functional option for configuring a redis Check.
type Option func(*Check) error

// WithTimeout bounds the handshake.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithCredentials sets the ACL user and password.
func WithCredentials(user, password string) Option {
	return func(c *Check) error {
		c.user = user
		c.password = password
		return nil
	}
}

// WithDB selects a logical database.
func WithDB(db int) Option {
	return func(c *Check) error {
		if db < 0 {
			return fmt.Errorf("db must not be negative, got %d", db)
		}
		c.db = db
		return nil
	}
}

// New creates a redis Check for host:port.
func New(host string, port int, opts ...Option) (*Check, error) {
	if host == "" {
		return nil, fmt.Errorf("redis: host must not be empty")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("redis: port must be between 1 and 65535, got %d", port)
	}

	c := &Check{
		host:    host,
		port:    port,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	return c, nil
}

// Type returns the stage type name.
func (c *Check) Type() string {
	return TypeName
}

// options builds the client options: one connection, no retries.
func (c *Check) options() *goredis.Options {
	return &goredis.Options{
		Addr:            net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		Username:        c.user,
		Password:        c.password,
		DB:              c.db,
		DialTimeout:     c.timeout,
		ReadTimeout:     c.timeout,
		WriteTimeout:    c.timeout,
		PoolSize:        1,
		MaxRetries:      -1,
		DisableIdentity: true,
	}
}

// Run dials, sends PING and closes the client.
func (c *Check) Run(ctx context.Context) check.Result {
	now := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := goredis.NewClient(c.options())
	defer client.Close()

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		return check.Result{
			Timestamp: now,
			Stage:     TypeName,
			Outcome:   check.AuthOrDatabaseFailure,
			Err:       fmt.Errorf("could not connect to redis db %d: %w", c.db, err),
		}
	}

	return check.Result{
		Timestamp: now,
		Stage:     TypeName,
		Outcome:   check.Reachable,
		Success:   true,
		Metrics: map[string]float64{
			"handshake_us": float64(time.Since(start).Microseconds()),
		},
	}
}

// Factory creates a redis Check from a config map.
// Required keys: "target" (string), "port" (number).
// Optional keys: "user", "password" (string), "db" (number), "timeout" (string).
func Factory(config map[string]any) (check.Check, error) {
	target, err := check.RequiredString(config, "target")
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	port, ok, err := check.IntOption(config, "port")
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: config missing required key 'port'")
	}

	user, _, err := check.StringOption(config, "user")
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	password, _, err := check.StringOption(config, "password")
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	opts := []Option{WithCredentials(user, password)}

	if db, ok, err := check.IntOption(config, "db"); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	} else if ok {
		opts = append(opts, WithDB(db))
	}

	if d, ok, err := check.DurationOption(config, "timeout"); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	} else if ok {
		opts = append(opts, WithTimeout(d))
	}

	return New(target, port, opts...)
}
