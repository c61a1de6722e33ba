package wal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/swarm-governance/pkg/database"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
	"github.com/codeready-toolchain/swarm-governance/pkg/wal"
)

func openTestDB(t *testing.T) *database.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("swarm_test"),
		postgres.WithUsername("swarm"),
		postgres.WithPassword("swarm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pgContainer.Terminate(ctx)) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := database.Open(ctx, database.Config{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestStore_AppendAndSince(t *testing.T) {
	client := openTestDB(t)
	store := wal.New(client.DB)
	ctx := context.Background()

	e1, err := store.Append(ctx, models.Event{
		ScopeID: "scope-1", EventType: "submitted", Actor: "agent-a",
		CorrelationID: "corr-1", Payload: map[string]any{"n": 1},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), e1.Seq)

	e2, err := store.Append(ctx, models.Event{
		ScopeID: "scope-1", EventType: "approved", Actor: "agent-b",
		CorrelationID: "corr-1", Payload: map[string]any{"n": 2},
	})
	require.NoError(t, err)
	require.Greater(t, e2.Seq, e1.Seq)

	since, err := store.Since(ctx, "scope-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, since, 2)
	require.Equal(t, "submitted", since[0].EventType)
	require.Equal(t, "approved", since[1].EventType)

	sinceFirst, err := store.Since(ctx, "scope-1", e1.Seq, 10)
	require.NoError(t, err)
	require.Len(t, sinceFirst, 1)
	require.Equal(t, "approved", sinceFirst[0].EventType)
}

func TestStore_Tail(t *testing.T) {
	client := openTestDB(t)
	store := wal.New(client.DB)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, models.Event{
			ScopeID: "scope-tail", EventType: "tick", Actor: "agent-a",
			CorrelationID: "corr-tail", Payload: map[string]any{"i": i},
		})
		require.NoError(t, err)
	}

	tail, err := store.Tail(ctx, "scope-tail", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Greater(t, tail[0].Seq, tail[1].Seq)
}

func TestStore_LastSeq_EmptyScope(t *testing.T) {
	client := openTestDB(t)
	store := wal.New(client.DB)

	seq, err := store.LastSeq(context.Background(), "scope-never-seen")
	require.NoError(t, err)
	require.Equal(t, int64(0), seq)
}
