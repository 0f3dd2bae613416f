package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
screener:
  capital: 10000000
  risk_fraction: 0.005
  position_cap_fraction: 0.2
  markets: ["KOSPI"]
rubrics:
  KOSPI:
    min_trading_value: 3000000000
    min_change_pct: 0.5
    max_change_pct: 29.9
    min_price: 1000
    max_price: 500000
    volume_tiers:
      tier3: 500000000000
      tier2: 100000000000
      tier1: 10000000000
    grading:
      s_min: 9
      a_min: 7
      b_min: 5
      b_change_pct: 3.0
      r_multiplier:
        s: 1.5
        a: 1.0
        b: 0.5
        c: 0.0
    stop_loss_pct: 0.03
    take_profit_pct: 0.05
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Screener.MaxConcurrent)
	assert.Equal(t, 30, cfg.Screener.MaxSignals)
	assert.Equal(t, 20, cfg.Screener.MinChartBars)
	assert.Equal(t, 60, cfg.Screener.ChartReqPerMinute)
	assert.Equal(t, 15*time.Second, cfg.Screener.HTTPTimeout)

	rubric, ok := cfg.RubricFor("KOSPI")
	require.True(t, ok)
	assert.Equal(t, int64(3_000_000_000), rubric.MinTradingValue)
	assert.Equal(t, 1.5, rubric.Grading.RMultiplierFor("S"))
	assert.Equal(t, 0.0, rubric.Grading.RMultiplierFor("C"))
}

func TestLoadRejectsMissingRubric(t *testing.T) {
	yaml := `
screener:
  capital: 10000000
  risk_fraction: 0.005
  position_cap_fraction: 0.2
  markets: ["KOSPI", "TSE"]
rubrics: {}
`
	_, err := Load(writeConfig(t, yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rubric configured")
}

func TestValidateRejectsBadTiers(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	rubric := cfg.Rubrics["KOSPI"]
	rubric.VolumeTiers.Tier2 = rubric.VolumeTiers.Tier3
	cfg.Rubrics["KOSPI"] = rubric

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume tiers")
}

func TestValidateRejectsBadRiskFraction(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	cfg.Screener.RiskFraction = 1.5
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_fraction")
}
