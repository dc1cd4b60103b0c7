package migration

import (
	"io/fs"
	"testing"

	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	"github.com/smallbiznis/clipperpay/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestApplyAutoMigratesSQLite(t *testing.T) {
	conn := testutil.OpenDB(t)

	require.NoError(t, Apply(conn, "sqlite"))
	// second run is a no-op
	require.NoError(t, Apply(conn, "sqlite"))

	for _, table := range []string{
		"clips", "budget_segments", "budget_cycles", "segment_cycles", "spend_entries",
		"risk_throttle", "creator_throttles", "risk_scores", "bonus_awards",
		"payout_records", "payout_deferrals", "payout_runs", "audit_logs",
	} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}
	require.True(t, conn.Migrator().HasIndex(&clipdomain.Clip{}, "ux_clips_external_key"))
	require.True(t, conn.Migrator().HasIndex(&payoutdomain.Record{}, "ux_payout_records_creator_week"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, err := fs.Glob(sub, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(sub, "*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}

func TestApplyRequiresHandle(t *testing.T) {
	require.Error(t, Apply(nil, "sqlite"))
}
