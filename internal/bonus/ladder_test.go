package bonus

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ladder = config.DefaultPayoutRules().BonusLadder

func TestEvaluateMilestonesSingleRung(t *testing.T) {
	got := EvaluateMilestones(150_000, nil, ladder)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100_000), got[0].Views)
	assert.Equal(t, int64(11_100), Total(got))
}

func TestEvaluateMilestonesAllCrossedAtOnce(t *testing.T) {
	got := EvaluateMilestones(1_200_000, nil, ladder)
	require.Len(t, got, 3)
	assert.Equal(t, int64(166_600), Total(got))
}

func TestEvaluateMilestonesSkipsPaid(t *testing.T) {
	got := EvaluateMilestones(1_200_000, []int64{100_000}, ladder)
	assert.Equal(t, int64(44_400+111_100), Total(got))
	assert.Empty(t, EvaluateMilestones(99_999, nil, ladder))
	assert.Len(t, EvaluateMilestones(100_000, nil, ladder), 1)
}

func TestClaimIsOncePerCreator(t *testing.T) {
	conn := testutil.OpenDB(t, &Award{})
	store := NewStore(testutil.Snowflake(t))
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	won, err := store.Claim(ctx, conn, "c1", "2026-W42", 100_000, 11_100, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Claim(ctx, conn, "c1", "2026-W43", 100_000, 11_100, now)
	require.NoError(t, err)
	assert.False(t, won)

	won, err = store.Claim(ctx, conn, "c2", "2026-W43", 100_000, 11_100, now)
	require.NoError(t, err)
	assert.True(t, won)

	awards, err := store.ListByCreator(ctx, conn, "c1")
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, []int64{100_000}, PaidElsewhere(awards, "2026-W43"))
	assert.Empty(t, PaidElsewhere(awards, "2026-W42"))
}
