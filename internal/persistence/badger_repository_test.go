package persistence

import (
	"testing"
	"time"

	"grid-box-finder-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestStateIsKeyedBySymbol(t *testing.T) {
	repo := newTestRepo(t)

	missing, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, missing)

	tuned := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveState(&models.RetunerState{
		Symbol:   "BTCUSDT",
		Version:  1,
		Cycles:   7,
		LastTune: tuned,
		Band:     &models.BandState{Lower: 60000, Upper: 62000, Levels: 16},
		Risk:     models.RiskSnapshot{SymbolExposure: map[string]float64{"BTCUSDT": 120}, Day: "2024-06-01"},
	}))
	require.NoError(t, repo.SaveState(&models.RetunerState{Symbol: "ETHUSDT", Cycles: 2}))

	got, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.Cycles)
	assert.True(t, tuned.Equal(got.LastTune))
	require.NotNil(t, got.Band)
	assert.Equal(t, 62000.0, got.Band.Upper)
	assert.Equal(t, 120.0, got.Risk.SymbolExposure["BTCUSDT"])

	eth, err := repo.LoadState("ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, eth.Cycles)

	assert.Error(t, repo.SaveState(&models.RetunerState{}), "symbol is required")
}

func TestLatestScanFollowsLastSave(t *testing.T) {
	repo := newTestRepo(t)

	latest, err := repo.LatestScan()
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.SaveScan(&models.ScanRecord{RunID: "run-a", Scanned: 10}))
	require.NoError(t, repo.SaveScan(&models.ScanRecord{
		RunID:   "run-b",
		Scanned: 12,
		Candidates: []models.CandidateSummary{
			{Symbol: "DOGEUSDT", Verdict: "GOOD", Score: 3.2},
		},
	}))

	latest, err = repo.LatestScan()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-b", latest.RunID)
	require.Len(t, latest.Candidates, 1)
	assert.Equal(t, "DOGEUSDT", latest.Candidates[0].Symbol)

	older, err := repo.LoadScan("run-a")
	require.NoError(t, err)
	assert.Equal(t, 10, older.Scanned)

	none, err := repo.LoadScan("run-z")
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.Error(t, repo.SaveScan(&models.ScanRecord{}))
}
