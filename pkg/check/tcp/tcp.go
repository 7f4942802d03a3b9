// Package tcp implements the port reachability stage.
//
// The hostname is resolved first so that a bad name is reported as
// check.HostUnresolvable rather than check.PortClosed. Each resolved
// address is then dialed in order until one accepts; the connection
// is closed before Run returns.
package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kylerisse/floodgate/pkg/check"
	"github.com/kylerisse/floodgate/pkg/resolve"
)

const (
	// TypeName is the registered name for this stage type.
	TypeName = "tcp"

	// DefaultTimeout is the default dial timeout.
	DefaultTimeout = 10 * time.Second
)

// Dialer opens transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Check implements check.Check by opening a TCP connection to host:port.
type Check struct {
	host     string
	port     int
	timeout  time.Duration
	resolver resolve.Resolver
	dialer   Dialer
}

// Option is a functional option for configuring a TCP Check.
type Option func(*Check) error

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithResolver replaces the system resolver.
func WithResolver(r resolve.Resolver) Option {
	return func(c *Check) error {
		if r == nil {
			return fmt.Errorf("resolver must not be nil")
		}
		c.resolver = r
		return nil
	}
}

// WithDialer replaces the net.Dialer used to connect.
func WithDialer(d Dialer) Option {
	return func(c *Check) error {
		if d == nil {
			return fmt.Errorf("dialer must not be nil")
		}
		c.dialer = d
		return nil
	}
}

// New creates a TCP Check for host:port.
func New(host string, port int, opts ...Option) (*Check, error) {
	if host == "" {
		return nil, fmt.Errorf("tcp: host must not be empty")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("tcp: port must be between 1 and 65535, got %d", port)
	}

	c := &Check{
		host:     host,
		port:     port,
		timeout:  DefaultTimeout,
		resolver: resolve.NewSystem(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("tcp: %w", err)
		}
	}

	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: c.timeout}
	}

	return c, nil
}

// Type returns the stage type name.
func (c *Check) Type() string {
	return TypeName
}

// Address returns the configured host:port.
func (c *Check) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Run resolves the host and dials the port. The connection, if any,
// is closed before returning.
func (c *Check) Run(ctx context.Context) check.Result {
	now := time.Now()

	addrs, err := c.resolver.Resolve(ctx, c.host)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("%w: %s: no addresses", resolve.ErrUnresolvable, c.host)
	}
	if err != nil {
		return check.Result{
			Timestamp: now,
			Stage:     TypeName,
			Outcome:   check.HostUnresolvable,
			Err:       err,
		}
	}

	var lastErr error
	for _, addr := range addrs {
		address := net.JoinHostPort(addr, strconv.Itoa(c.port))

		start := time.Now()
		err := c.dial(ctx, address)
		elapsed := time.Since(start)
		if err != nil {
			lastErr = fmt.Errorf("port %d on host %s is closed: %w", c.port, c.host, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		return check.Result{
			Timestamp: now,
			Stage:     TypeName,
			Outcome:   check.Reachable,
			Success:   true,
			Metrics: map[string]float64{
				"connect_us": float64(elapsed.Microseconds()),
			},
		}
	}

	return check.Result{
		Timestamp: now,
		Stage:     TypeName,
		Outcome:   check.PortClosed,
		Err:       lastErr,
	}
}

// dial connects to one address within its own timeout and closes the
// connection. A blackholed address does not eat the budget of the next.
func (c *Check) dial(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// Factory creates a TCP Check from a config map.
//
// Required keys:
//   - "target" (string): hostname or IP
//   - "port" (number)
//
// Optional keys:
//   - "timeout" (string): dial timeout, default "10s"
//   - "dns_server" (string): host[:port] of a DNS server to resolve through
//   - "dns_timeout" (string): per-query timeout for dns_server
func Factory(config map[string]any) (check.Check, error) {
	target, err := check.RequiredString(config, "target")
	if err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}

	port, ok, err := check.IntOption(config, "port")
	if err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("tcp: config missing required key 'port'")
	}

	var opts []Option

	if d, ok, err := check.DurationOption(config, "timeout"); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	} else if ok {
		opts = append(opts, WithTimeout(d))
	}

	server, _, err := check.StringOption(config, "dns_server")
	if err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	dnsTimeout, _, err := check.DurationOption(config, "dns_timeout")
	if err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if server != "" {
		r, err := resolve.New(server, dnsTimeout)
		if err != nil {
			return nil, fmt.Errorf("tcp: %w", err)
		}
		opts = append(opts, WithResolver(r))
	}

	return New(target, port, opts...)
}
