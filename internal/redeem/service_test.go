package redeem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrclaim/server/internal/repo"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(repo.NewMemoryTokenRepo())
}

func TestClaim_success(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, "SN-001"))

	claim, err := svc.Claim(ctx, "SN-001", "5551234567")
	require.NoError(t, err)
	assert.Equal(t, "SN-001", claim.SerialNumber)
	assert.Equal(t, "5551234567", claim.Phone)
	assert.False(t, claim.ScannedAt.IsZero())
}

func TestClaim_inputValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Claim(ctx, "", "5551234567")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Claim(ctx, "SN-001", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Claim(ctx, "SN-001", "not-a-phone")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClaim_tokenNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Claim(context.Background(), "SN-MISSING", "5551234567")
	assert.ErrorIs(t, err, repo.ErrTokenNotFound)
}

func TestClaim_firstComeWins(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, "SN-001"))
	_, err := svc.Claim(ctx, "SN-001", "5551234567")
	require.NoError(t, err)

	// A different phone is rejected with the winner's details.
	_, err = svc.Claim(ctx, "SN-001", "5559999999")
	var conflict *repo.AlreadyClaimedError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "5551234567", conflict.ClaimedBy)
	assert.False(t, conflict.ClaimedAt.IsZero())

	// So is the winner retrying; a claim never succeeds twice.
	_, err = svc.Claim(ctx, "SN-001", "5551234567")
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "5551234567", conflict.ClaimedBy)
}

func TestClaim_concurrentSingleWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Provision(ctx, "SN-RACE"))

	const racers = 20
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := fmt.Sprintf("555000%04d", i)
			_, errs[i] = svc.Claim(ctx, "SN-RACE", phone)
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
		require.ErrorAs(t, err, &conflict, "losers must observe the claim conflict")
		assert.NotEmpty(t, conflict.ClaimedBy)
	}
	assert.Equal(t, 1, successes, "exactly one racer may claim the token")
}

func TestProvision_duplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, "SN-001"))
	assert.ErrorIs(t, svc.Provision(ctx, "SN-001"), repo.ErrTokenExists)

	assert.ErrorIs(t, svc.Provision(ctx, ""), ErrInvalidInput)
}

func TestListClaims_orderingAndPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	phone := "5551234567"

	serials := []string{"SN-001", "SN-002", "SN-003", "SN-004", "SN-005"}
	for _, sn := range serials {
		require.NoError(t, svc.Provision(ctx, sn))
		_, err := svc.Claim(ctx, sn, phone)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	page1, err := svc.ListClaims(ctx, phone, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page1.Total)
	require.Len(t, page1.Records, 2)
	assert.Equal(t, "SN-005", page1.Records[0].SerialNumber)
	assert.Equal(t, "SN-004", page1.Records[1].SerialNumber)

	page2, err := svc.ListClaims(ctx, phone, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Records, 2)
	assert.Equal(t, "SN-003", page2.Records[0].SerialNumber)
	assert.Equal(t, "SN-002", page2.Records[1].SerialNumber)

	page3, err := svc.ListClaims(ctx, phone, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3.Records, 1)
	assert.Equal(t, "SN-001", page3.Records[0].SerialNumber)

	for i := 1; i < len(page1.Records); i++ {
		assert.True(t, !page1.Records[i-1].ScannedAt.Before(page1.Records[i].ScannedAt),
			"records must be ordered most recent first")
	}
}

func TestListClaims_defaultsAndCaps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	page, err := svc.ListClaims(ctx, "5551234567", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Records)

	page, err = svc.ListClaims(ctx, "5551234567", 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, page.PageSize)

	_, err = svc.ListClaims(ctx, "bad", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListClaims_emptyOtherPhone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, "SN-001"))
	_, err := svc.Claim(ctx, "SN-001", "5551234567")
	require.NoError(t, err)

	page, err := svc.ListClaims(ctx, "5559999999", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Records)
}

func TestTotalClaims(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, sn := range []string{"SN-001", "SN-002"} {
		require.NoError(t, svc.Provision(ctx, sn))
		_, err := svc.Claim(ctx, sn, "5551234567")
		require.NoError(t, err)
	}

	total, err := svc.TotalClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestClaim_errorsAreDistinguishable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Provision(ctx, "SN-001"))
	_, err := svc.Claim(ctx, "SN-001", "5551234567")
	require.NoError(t, err)

	_, err = svc.Claim(ctx, "SN-001", "5559999999")
	assert.False(t, errors.Is(err, repo.ErrTokenNotFound))
	var conflict *repo.AlreadyClaimedError
	assert.ErrorAs(t, err, &conflict)
}
