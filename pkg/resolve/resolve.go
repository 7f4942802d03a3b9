// Package resolve turns a database hostname into dialable IP addresses.
//
// System uses the platform resolver. DNS queries a specific server for
// A and AAAA records using miekg/dns, which lets a gate running in a
// container check names against the same server its dependents will use.
// Every resolution failure wraps ErrUnresolvable so callers can tell a
// bad name apart from a closed port.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout is the default per-query timeout for DNS.
const DefaultTimeout = 3 * time.Second

// ErrUnresolvable is wrapped by every error returned from Resolve.
var ErrUnresolvable = errors.New("hostname could not be resolved")

// Resolver returns the IP addresses for a hostname.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]string, error)
}

// New returns a DNS resolver for server, or the system resolver when
// server is empty.
func New(server string, timeout time.Duration) (Resolver, error) {
	if server == "" {
		return NewSystem(), nil
	}
	var opts []Option
	if timeout > 0 {
		opts = append(opts, WithTimeout(timeout))
	}
	return NewDNS(server, opts...)
}

// System resolves names with net.Resolver.
type System struct {
	resolver *net.Resolver
}

// NewSystem returns a System resolver backed by net.DefaultResolver.
func NewSystem() *System {
	return &System{resolver: net.DefaultResolver}
}

// Resolve looks up host. IP literals are returned unchanged.
func (s *System) Resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	if host == "" {
		return nil, fmt.Errorf("%w: empty hostname", ErrUnresolvable)
	}

	addrs, err := s.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvable, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrUnresolvable, host)
	}
	return addrs, nil
}

// DNS resolves names by querying a specific server.
type DNS struct {
	server  string // host:port of the DNS server
	timeout time.Duration
	client  *dns.Client
}

// Option is a functional option for configuring a DNS resolver.
type Option func(*DNS) error

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *DNS) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		r.timeout = d
		return nil
	}
}

// NewDNS creates a resolver that queries server. A server without a
// port is queried on 53.
func NewDNS(server string, opts ...Option) (*DNS, error) {
	if server == "" {
		return nil, fmt.Errorf("resolve: dns server must not be empty")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	r := &DNS{
		server:  server,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}

	r.client = &dns.Client{
		Timeout: r.timeout,
	}

	return r, nil
}

// Server returns the host:port being queried.
func (r *DNS) Server() string {
	return r.server
}

// Resolve queries A then AAAA records for host and returns every address
// found. IP literals are returned unchanged without a query.
func (r *DNS) Resolve(ctx context.Context, host string) ([]string, error) {
	host = normalizeHost(host)
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	if host == "" {
		return nil, fmt.Errorf("%w: empty hostname", ErrUnresolvable)
	}

	var addrs []string
	var lastErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, found...)
	}

	if len(addrs) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no A or AAAA records")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvable, host, lastErr)
	}
	return addrs, nil
}

// query performs a single lookup and extracts the addresses of the given type.
func (r *DNS) query(ctx context.Context, host string, qtype uint16) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%s query via %s: %w", qtypeName(qtype), r.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query via %s: rcode %s", qtypeName(qtype), r.server, dns.RcodeToString[resp.Rcode])
	}

	var addrs []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				addrs = append(addrs, v.A.String())
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				addrs = append(addrs, v.AAAA.String())
			}
		}
	}
	return addrs, nil
}

// qtypeName returns a human-readable record type name for error messages.
func qtypeName(qtype uint16) string {
	switch qtype {
	case dns.TypeA:
		return "A"
	case dns.TypeAAAA:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", qtype)
	}
}

// normalizeHost strips a trailing dot so "db.example." and "db.example" are the same name.
func normalizeHost(s string) string {
	return strings.TrimSuffix(s, ".")
}
