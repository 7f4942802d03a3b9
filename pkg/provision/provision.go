// Package provision creates the flood-damage model database and its
// group roles once the gate reports the server ready. Every step checks
// the catalog first, so running it again is a no-op.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/kylerisse/floodgate/pkg/gate"
)

const (
	// DefaultDatabase is the database created when none is configured.
	DefaultDatabase = "flood_damage"

	// DefaultTimeout bounds the whole provisioning run.
	DefaultTimeout = time.Minute

	maxIdentifierLength = 63
)

// Session is the part of *pgx.Conn the provisioner uses.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Connector opens a session on the admin database.
type Connector func(ctx context.Context, cfg *pgx.ConnConfig) (Session, error)

func pgxConnect(ctx context.Context, cfg *pgx.ConnConfig) (Session, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Roles names the group roles created for a database.
type Roles struct {
	Admin string
	Model string
	Read  string
}

// RolesFor derives the role names for database db.
func RolesFor(db string) Roles {
	return Roles{
		Admin: db + "_admin_role",
		Model: db + "_model_role",
		Read:  db + "_read_role",
	}
}

func (r Roles) all() []string {
	return []string{r.Admin, r.Model, r.Read}
}

// Report lists what a run changed.
type Report struct {
	Database        string
	DatabaseCreated bool
	RolesCreated    []string
}

// Provisioner creates the model database on the server behind target.
type Provisioner struct {
	target   gate.Target
	database string
	roles    Roles
	sslMode  string
	timeout  time.Duration
	connect  Connector
	logger   logrus.FieldLogger
}

// Option is a functional option for configuring a Provisioner.
type Option func(*Provisioner) error

// WithSSLMode sets the libpq sslmode for the admin connection.
func WithSSLMode(mode string) Option {
	return func(p *Provisioner) error {
		if mode == "" {
			return errors.New("sslmode must not be empty")
		}
		p.sslMode = mode
		return nil
	}
}

// WithTimeout bounds the provisioning run.
func WithTimeout(d time.Duration) Option {
	return func(p *Provisioner) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithConnector replaces the pgx connector.
func WithConnector(fn Connector) Option {
	return func(p *Provisioner) error {
		if fn == nil {
			return errors.New("connector must not be nil")
		}
		p.connect = fn
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Provisioner) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		p.logger = l
		return nil
	}
}

// New creates a Provisioner that connects to target.Database as
// target.User and creates database.
func New(target gate.Target, database string, opts ...Option) (*Provisioner, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}
	if target.Database == "" || target.User == "" {
		return nil, errors.New("provision: admin database and user are required")
	}
	if database == "" {
		database = DefaultDatabase
	}
	roles := RolesFor(database)
	for _, name := range append([]string{database}, roles.all()...) {
		if len(name) > maxIdentifierLength {
			return nil, fmt.Errorf("provision: identifier %q exceeds %d bytes", name, maxIdentifierLength)
		}
	}

	p := &Provisioner{
		target:   target,
		database: database,
		roles:    roles,
		sslMode:  "prefer",
		timeout:  DefaultTimeout,
		connect:  pgxConnect,
		logger:   logrus.StandardLogger(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("provision: %w", err)
		}
	}

	return p, nil
}

// Database returns the name of the database to create.
func (p *Provisioner) Database() string {
	return p.database
}

// Roles returns the role names to create.
func (p *Provisioner) Roles() Roles {
	return p.roles
}

func (p *Provisioner) connConfig() (*pgx.ConnConfig, error) {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.target.User, p.target.Password),
		Host:     net.JoinHostPort(p.target.Host, strconv.Itoa(p.target.Port)),
		Path:     "/" + p.target.Database,
		RawQuery: url.Values{"sslmode": []string{p.sslMode}}.Encode(),
	}
	return pgx.ParseConfig(u.String())
}

// Create makes the database and roles if missing and grants the roles
// access to the database.
func (p *Provisioner) Create(ctx context.Context) (Report, error) {
	report := Report{Database: p.database}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cfg, err := p.connConfig()
	if err != nil {
		return report, fmt.Errorf("invalid connection settings: %w", err)
	}

	conn, err := p.connect(ctx, cfg)
	if err != nil {
		return report, fmt.Errorf("could not connect to admin database %q: %w", p.target.Database, err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		defer closeCancel()
		if err := conn.Close(closeCtx); err != nil {
			p.logger.WithError(err).Warn("Failed to close admin connection")
		}
	}()

	db := pgx.Identifier{p.database}.Sanitize()

	exists, err := queryExists(ctx, conn, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", p.database)
	if err != nil {
		return report, fmt.Errorf("lookup database %q: %w", p.database, err)
	}
	if !exists {
		if _, err := conn.Exec(ctx, "CREATE DATABASE "+db); err != nil {
			return report, fmt.Errorf("create database %q: %w", p.database, err)
		}
		report.DatabaseCreated = true
		p.logger.WithField("database", p.database).Info("Created database")
	}

	for _, role := range p.roles.all() {
		exists, err := queryExists(ctx, conn, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", role)
		if err != nil {
			return report, fmt.Errorf("lookup role %q: %w", role, err)
		}
		if exists {
			continue
		}
		if _, err := conn.Exec(ctx, "CREATE ROLE "+pgx.Identifier{role}.Sanitize()+" NOLOGIN"); err != nil {
			return report, fmt.Errorf("create role %q: %w", role, err)
		}
		report.RolesCreated = append(report.RolesCreated, role)
		p.logger.WithField("role", role).Info("Created role")
	}

	for _, stmt := range p.grants(db) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return report, fmt.Errorf("grant on database %q: %w", p.database, err)
		}
	}

	return report, nil
}

func (p *Provisioner) grants(db string) []string {
	return []string{
		"GRANT ALL PRIVILEGES ON DATABASE " + db + " TO " + pgx.Identifier{p.roles.Admin}.Sanitize(),
		"GRANT CONNECT ON DATABASE " + db + " TO " + pgx.Identifier{p.roles.Model}.Sanitize(),
		"GRANT CONNECT ON DATABASE " + db + " TO " + pgx.Identifier{p.roles.Read}.Sanitize(),
	}
}

func queryExists(ctx context.Context, conn Session, query, name string) (bool, error) {
	var exists bool
	if err := conn.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
