package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPayoutRulesAreValid(t *testing.T) {
	rules := DefaultPayoutRules()
	require.NoError(t, ValidatePayoutRules(rules))
	assert.Equal(t, int64(22), rules.DefaultRPMCents)
	assert.Equal(t, int64(222), rules.FloorCents)
	assert.Equal(t, int64(2200), rules.CapCents)
	assert.Len(t, rules.BonusLadder, 3)
}

func TestValidatePayoutRulesRejectsUnorderedThresholds(t *testing.T) {
	rules := DefaultPayoutRules()
	rules.Thresholds = Thresholds{WarnPercent: 95, ThrottlePercent: 80, FreezePercent: 100}
	assert.Error(t, ValidatePayoutRules(rules))
}

func TestValidatePayoutRulesRejectsCapBelowFloor(t *testing.T) {
	rules := DefaultPayoutRules()
	rules.CapCents = 100
	assert.Error(t, ValidatePayoutRules(rules))
}

func TestNewPayoutRulesHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPayoutRulesHolder()
	require.NoError(t, err)
	assert.Equal(t, DefaultPayoutRules().ClipperSegment, holder.Get().ClipperSegment)
}

func TestNewPayoutRulesHolderOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := []byte(`payout:
  defaultRpmCents: 30
  bonusLadder:
    - views: 500000
      amountCents: 44400
    - views: 100000
      amountCents: 11100
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payout.yml"), content, 0o600))

	holder, err := NewPayoutRulesHolder()
	require.NoError(t, err)

	rules := holder.Get()
	assert.Equal(t, int64(30), rules.DefaultRPMCents)
	assert.Equal(t, int64(2200), rules.CapCents)
	require.Len(t, rules.BonusLadder, 2)
	assert.Equal(t, int64(100000), rules.BonusLadder[0].Views)
}

func TestParseRoles(t *testing.T) {
	roles := parseRoles("alice=Admin, bob=finance,broken,=viewer")
	assert.Equal(t, map[string]string{"alice": "admin", "bob": "finance"}, roles)
}
