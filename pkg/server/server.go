// Package server runs the gate periodically and serves the latest result
// to orchestrators over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kylerisse/floodgate/pkg/check"
	"github.com/kylerisse/floodgate/pkg/gate"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"

	// DefaultInterval is the time between gate evaluations.
	DefaultInterval = 30 * time.Second

	// staleFactor multiplies the interval to get the age after which a
	// successful result no longer counts as ready.
	staleFactor = 3
)

// Checker runs one gate attempt. *gate.Gate implements it.
type Checker interface {
	Check(ctx context.Context) bool
}

// Server evaluates a Checker on a ticker and serves its status.
type Server struct {
	checker  Checker
	status   *check.Status
	addr     string
	interval time.Duration
	clock    clockwork.Clock
	logger   logrus.FieldLogger
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter

	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopErr    error
}

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			return errors.New("listen address must not be empty")
		}
		s.addr = addr
		return nil
	}
}

// WithInterval sets the time between gate evaluations.
func WithInterval(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %v", d)
		}
		s.interval = d
		return nil
	}
}

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		s.clock = c
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = l
		return nil
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) error {
		if g == nil {
			return errors.New("gatherer must not be nil")
		}
		s.gatherer = g
		return nil
	}
}

// WithRateLimit sets the request rate limit shared by all endpoints.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) error {
		s.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// New creates a Server that evaluates checker and reads results from
// status. Wire status to the gate with StatusObserver.
func New(checker Checker, status *check.Status, opts ...Option) (*Server, error) {
	if checker == nil {
		return nil, errors.New("server: checker must not be nil")
	}
	if status == nil {
		return nil, errors.New("server: status must not be nil")
	}

	s := &Server{
		checker:  checker,
		status:   status,
		addr:     DefaultAddr,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
		logger:   logrus.StandardLogger(),
		gatherer: prometheus.DefaultGatherer,
		limiter:  rate.NewLimiter(rate.Limit(50), 100),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}

	return s, nil
}

// StatusObserver records every gate attempt in status.
func StatusObserver(status *check.Status, clock clockwork.Clock) gate.Observer {
	return gate.ObserverFunc(func(a gate.Attempt) {
		status.SetResult(a.Result, clock.Now())
	})
}

// StaleAfter is the age after which a successful result stops counting.
func (s *Server) StaleAfter() time.Duration {
	return staleFactor * s.interval
}

// Start binds the listen address, then runs the worker and the HTTP
// server in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.wg.Add(2)
	go s.worker()
	go func() {
		defer s.wg.Done()
		s.logger.Infof("Starting readiness server on %s...", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Readiness server failed: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts down the HTTP server and the worker. Later calls return the
// result of the first.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.httpServer != nil {
			s.stopErr = s.httpServer.Shutdown(ctx)
		}
		s.wg.Wait()
		s.logger.Info("Readiness server stopped.")
	})
	return s.stopErr
}

// worker evaluates the gate immediately, then on every tick.
func (s *Server) worker() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runCheck(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.runCheck(ctx)
		case <-s.done:
			s.logger.Info("Worker received shutdown signal.")
			return
		}
	}
}

func (s *Server) runCheck(ctx context.Context) {
	ready := s.checker.Check(ctx)
	s.logger.WithField("ready", ready).Debug("Gate evaluated")
}
