// Package postgres implements the application-layer handshake stage.
//
// A real session is opened with the configured credentials and database
// name, pinged once, and closed before Run returns. Any failure maps to
// check.AuthOrDatabaseFailure.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kylerisse/floodgate/pkg/check"
)

const (
	// TypeName is the registered name for this stage type.
	TypeName = "postgres"

	// DefaultTimeout bounds connecting plus the ping.
	DefaultTimeout = 10 * time.Second

	// DefaultSSLMode matches libpq's default.
	DefaultSSLMode = "prefer"
)

var sslModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Session is the part of *pgx.Conn the stage uses.
type Session interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connector opens a session. The default wraps pgx.ConnectConfig.
type Connector func(ctx context.Context, cfg *pgx.ConnConfig) (Session, error)

func pgxConnect(ctx context.Context, cfg *pgx.ConnConfig) (Session, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Check implements check.Check by opening a PostgreSQL session.
type Check struct {
	host     string
	port     int
	database string
	user     string
	password string
	sslMode  string
	timeout  time.Duration
	connect  Connector
}

// Option is a functional option for configuring a postgres Check.
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

// WithSSLMode sets the libpq-style sslmode.
func WithSSLMode(mode string) Option {
	return func(c *Check) error {
		if !sslModes[mode] {
			return fmt.Errorf("unsupported sslmode %q", mode)
		}
		c.sslMode = mode
		return nil
	}
}

// WithConnector replaces pgx.ConnectConfig.
func WithConnector(fn Connector) Option {
	return func(c *Check) error {
		if fn == nil {
			return fmt.Errorf("connector must not be nil")
		}
		c.connect = fn
		return nil
	}
}

// New creates a postgres Check.
func New(host string, port int, database, user, password string, opts ...Option) (*Check, error) {
	if host == "" {
		return nil, fmt.Errorf("postgres: host must not be empty")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("postgres: port must be between 1 and 65535, got %d", port)
	}
	if database == "" {
		return nil, fmt.Errorf("postgres: database must not be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("postgres: user must not be empty")
	}

	c := &Check{
		host:     host,
		port:     port,
		database: database,
		user:     user,
		password: password,
		sslMode:  DefaultSSLMode,
		timeout:  DefaultTimeout,
		connect:  pgxConnect,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
	}

	return c, nil
}

// Type returns the stage type name.
func (c *Check) Type() string {
	return TypeName
}

// ConnString returns the postgres:// URL for the target. The password
// is included; do not log it.
func (c *Check) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.user, c.password),
		Host:     net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		Path:     "/" + c.database,
		RawQuery: url.Values{"sslmode": []string{c.sslMode}}.Encode(),
	}
	return u.String()
}

// Run opens a session, pings it, and closes it.
func (c *Check) Run(ctx context.Context) check.Result {
	now := time.Now()

	fail := func(err error) check.Result {
		return check.Result{
			Timestamp: now,
			Stage:     TypeName,
			Outcome:   check.AuthOrDatabaseFailure,
			Err:       fmt.Errorf("could not connect to database %q: %w", c.database, err),
		}
	}

	cfg, err := pgx.ParseConfig(c.ConnString())
	if err != nil {
		return fail(err)
	}
	cfg.ConnectTimeout = c.timeout

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	session, err := c.connect(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer func() {
		// Close with a fresh context so a spent deadline cannot skip the Terminate message.
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		defer closeCancel()
		_ = session.Close(closeCtx)
	}()

	if err := session.Ping(ctx); err != nil {
		return fail(err)
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

// Factory creates a postgres Check from a config map.
//
// Required keys: "target" (string), "port" (number), "database" (string),
// "user" (string).
// Optional keys: "password" (string), "sslmode" (string), "timeout" (string).
func Factory(config map[string]any) (check.Check, error) {
	target, err := check.RequiredString(config, "target")
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	port, ok, err := check.IntOption(config, "port")
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("postgres: config missing required key 'port'")
	}
	database, err := check.RequiredString(config, "database")
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	user, err := check.RequiredString(config, "user")
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	password, _, err := check.StringOption(config, "password")
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	var opts []Option

	if mode, ok, err := check.StringOption(config, "sslmode"); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	} else if ok && mode != "" {
		opts = append(opts, WithSSLMode(mode))
	}

	if d, ok, err := check.DurationOption(config, "timeout"); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	} else if ok {
		opts = append(opts, WithTimeout(d))
	}

	return New(target, port, database, user, password, opts...)
}
