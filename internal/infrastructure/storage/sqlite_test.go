package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_scale_out/internal/domain"
	"github.com/vitos/crypto_scale_out/internal/infrastructure/storage"
)

func TestJournalWrites(t *testing.T) {
	j, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()

	run := &domain.Run{
		ID:         "run-1",
		Symbol:     "tBTCUSD",
		Amount:     0.1,
		EntryPrice: 10000,
		StopPrice:  9000,
		ExitMode:   string(domain.ExitScaleOut),
		StartedAt:  time.Now(),
	}
	require.NoError(t, j.SaveRun(ctx, run))

	events := []*domain.OrderEvent{
		{RunID: "run-1", CID: 1, Kind: "submit", Status: "PENDING", Price: 10000, Amount: 0.1, Note: "entry", CreatedAt: time.Now()},
		{RunID: "run-1", CID: 1, Kind: "ack", Status: "ACTIVE", Price: 10000, Amount: 0.1, CreatedAt: time.Now()},
		{RunID: "run-1", CID: 2, Kind: "submit", Status: "PENDING", Price: 9000, Amount: -0.05, Note: "scale-out stop", CreatedAt: time.Now()},
	}
	for _, ev := range events {
		require.NoError(t, j.SaveOrderEvent(ctx, ev))
	}
}
