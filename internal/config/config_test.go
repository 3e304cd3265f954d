package config

import (
	"os"
	"path/filepath"
	"math"
	"testing"

	"grid-box-finder-go/internal/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "USDT", cfg.Scanner.Quote)
	assert.Equal(t, 360, cfg.Retuner.Limit)
	assert.Equal(t, 35.0, cfg.Retuner.ADXLimitHi)
	assert.Equal(t, 180, cfg.Classifier.PingPong.Window)
	assert.Equal(t, "paper", cfg.Retuner.Mode)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"db_path": "/tmp/box.db",
		"retuner": {"symbol": "DOGEUSDT", "adx_limit_hi": 40, "adx_limit_lo": 33},
		"sizer": {"levels": 24, "capital": 500},
		"classifier": {"pingpong": {"adx_max": 15}}
	}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/box.db", cfg.DBPath)
	assert.Equal(t, "DOGEUSDT", cfg.Retuner.Symbol)
	assert.Equal(t, 40.0, cfg.Retuner.ADXLimitHi)
	assert.Equal(t, 24, cfg.Sizer.Levels)
	assert.Equal(t, 15.0, cfg.Classifier.PingPong.ADXMax)
	// untouched keys keep their defaults
	assert.Equal(t, 18, cfg.Classifier.PingPong.MidCrossMin)
	assert.Equal(t, 120, cfg.Retuner.GuardWindow)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GBF_RISK_DAILY_MAX_LOSS", "75")
	t.Setenv("GBF_RETUNER_SYMBOL", "ETHUSDT")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.Risk.DailyMaxLoss)
	assert.Equal(t, "ETHUSDT", cfg.Retuner.Symbol)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `{"retuner": {"mode": "yolo"}}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)

	path = writeConfig(t, `{"retuner": {"adx_limit_hi": 30, "adx_limit_lo": 31}}`)
	_, err = LoadConfig(path)
	assert.Error(t, err, "lo must stay below hi")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefaultScanWindowsFitOneFetch(t *testing.T) {
	sc := Default().Scanner
	mins := indicator.IntervalMinutes(sc.Interval)
	long := indicator.BarsForHours(sc.Interval, sc.LongHours)
	short := indicator.BarsForHours(sc.Interval, sc.ShortHours)

	assert.Equal(t, int(math.Ceil(sc.LongHours*60/mins))+2, long, "long window must not be clamped")
	assert.Less(t, long, 1000)
	assert.LessOrEqual(t, short, long, "short window is the tail of the long fetch")

	// the reference oscillation 97..103 spans 6% of its median
	assert.LessOrEqual(t, Default().Classifier.Regime.RangeMin, 0.06)
}
