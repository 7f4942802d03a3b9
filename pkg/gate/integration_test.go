//go:build integration

package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kylerisse/floodgate/pkg/check"
)

// startPostgres runs a disposable PostgreSQL server and returns its target.
func startPostgres(ctx context.Context, t *testing.T) Target {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("postgres"),
		tcpostgres.WithUsername("docker"),
		tcpostgres.WithPassword("docker"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return Target{
		Host:     host,
		Port:     port.Int(),
		Database: "postgres",
		User:     "docker",
		Password: "docker",
	}
}

func TestIntegration_OpenServerPassesFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	target := startPostgres(ctx, t)
	var attempts []Attempt

	g, err := Build(DefaultRegistry(), target,
		RetryPolicy{MaxAttempts: 15, Backoff: time.Second, SkipPing: true},
		Settings{SSLMode: "disable"},
		WithLogger(quietLogger()),
		recordAttempts(&attempts),
	)
	require.NoError(t, err)

	require.True(t, g.WaitUntilReady(ctx))
	require.Len(t, attempts, 1)
	require.Len(t, attempts[0].Stages, 2)
	require.Equal(t, check.Reachable, attempts[0].Result.Outcome)
}

func TestIntegration_WrongPasswordIsAuthFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	target := startPostgres(ctx, t)
	target.Password = "wrong"
	var attempts []Attempt

	g, err := Build(DefaultRegistry(), target,
		RetryPolicy{MaxAttempts: 2, SkipPing: true},
		Settings{SSLMode: "disable"},
		WithLogger(quietLogger()),
		recordAttempts(&attempts),
	)
	require.NoError(t, err)

	require.False(t, g.WaitUntilReady(ctx))
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		require.Len(t, a.Stages, 2)
		require.Equal(t, "postgres", a.Result.Stage)
		require.Equal(t, check.AuthOrDatabaseFailure, a.Result.Outcome)
	}
}
