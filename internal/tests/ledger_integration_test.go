package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrclaim/server/internal/db"
	"github.com/qrclaim/server/internal/repo"
	_ "github.com/lib/pq"
)

// newLedgerDB opens the test database or skips the test when DATABASE_URL is
// not configured.
func newLedgerDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping ledger integration test")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
	require.NoError(t, err, "database open must succeed; check DATABASE_URL")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database))
	require.NoError(t, TruncateLedgerTables(ctx, database))
	return database
}

func TestTokenRepo_claimLifecycle(t *testing.T) {
	database := newLedgerDB(t)
	tokens := repo.NewTokenRepo(database)
	ctx := context.Background()

	require.NoError(t, tokens.Provision(ctx, "SN-001"))
	assert.ErrorIs(t, tokens.Provision(ctx, "SN-001"), repo.ErrTokenExists)

	claim, err := tokens.Claim(ctx, "SN-001", "5551234567")
	require.NoError(t, err)
	assert.Equal(t, "SN-001", claim.SerialNumber)
	assert.False(t, claim.ScannedAt.IsZero())

	token, err := tokens.GetToken(ctx, "SN-001")
	require.NoError(t, err)
	assert.True(t, token.Claimed)
	require.NotNil(t, token.ClaimedByPhone)
	assert.Equal(t, "5551234567", *token.ClaimedByPhone)
	assert.Equal(t, 1, token.ClaimCount)

	// Losing claims report the winner.
	_, err = tokens.Claim(ctx, "SN-001", "5559999999")
	var conflict *repo.AlreadyClaimedError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "5551234567", conflict.ClaimedBy)
	assert.False(t, conflict.ClaimedAt.IsZero())

	_, err = tokens.Claim(ctx, "SN-MISSING", "5551234567")
	assert.ErrorIs(t, err, repo.ErrTokenNotFound)
}

func TestTokenRepo_concurrentClaims(t *testing.T) {
	database := newLedgerDB(t)
	tokens := repo.NewTokenRepo(database)
	ctx := context.Background()

	require.NoError(t, tokens.Provision(ctx, "SN-RACE"))

	const racers = 10
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tokens.Claim(ctx, "SN-RACE", fmt.Sprintf("555000%04d", i))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *repo.AlreadyClaimedError
		require.ErrorAs(t, err, &conflict, "losers must see the winning claim, got: %v", err)
	}
	assert.Equal(t, 1, successes, "the database must admit exactly one claim")

	token, err := tokens.GetToken(ctx, "SN-RACE")
	require.NoError(t, err)
	assert.Equal(t, 1, token.ClaimCount)
}

func TestTokenRepo_listClaims(t *testing.T) {
	database := newLedgerDB(t)
	tokens := repo.NewTokenRepo(database)
	ctx := context.Background()
	phone := "5551234567"

	for i := 1; i <= 5; i++ {
		serial := fmt.Sprintf("SN-%03d", i)
		require.NoError(t, tokens.Provision(ctx, serial))
		_, err := tokens.Claim(ctx, serial, phone)
		require.NoError(t, err)
	}

	page, total, err := tokens.ListClaimsByPhone(ctx, phone, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 3)
	for i := 1; i < len(page); i++ {
		assert.False(t, page[i-1].ScannedAt.Before(page[i].ScannedAt),
			"claims must be ordered most recent first")
	}

	rest, total, err := tokens.ListClaimsByPhone(ctx, phone, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rest, 2)

	none, total, err := tokens.ListClaimsByPhone(ctx, "5559999999", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	count, err := tokens.CountClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
