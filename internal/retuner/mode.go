package retuner

import "grid-box-finder-go/internal/indicator"

// Mode is the strategy the loop runs for the current iteration.
type Mode string

const (
	ModeDynamicGrid Mode = "DYNAMIC_GRID"
	ModePause       Mode = "PAUSE"
)

// modeMinBars is one hour of 1m bars; shorter histories report zero activity.
const modeMinBars = 60

// ModeConfig holds the floors the market must clear before a grid is placed.
type ModeConfig struct {
	ADXLimit float64
	CrossMin float64
	TouchMin float64
}

// DefaultModeConfig returns adx < 25, 6 crosses/h, 8 touches/h.
func DefaultModeConfig() ModeConfig {
	return ModeConfig{ADXLimit: 25, CrossMin: 6, TouchMin: 8}
}

// Metrics are the activity readings PickMode decides on.
type Metrics struct {
	ADX            float64
	CrossesPerHour float64
	TouchesPerHour float64
}

// BuildMetrics measures crossings of the 20-bar SMA and touches of the
// 20%/80% quantiles per hour.
func BuildMetrics(closes []float64, adx, barMinutes float64) Metrics {
	m := Metrics{ADX: adx}
	if len(closes) < modeMinBars {
		return m
	}
	m.CrossesPerHour = indicator.CrossRate(closes, 20, barMinutes).CountRate
	m.TouchesPerHour = indicator.TouchesPerHour(closes, 0.2, 0.8, barMinutes)
	return m
}

// PickMode runs the grid only in a quiet, actively oscillating market.
func PickMode(m Metrics, cfg ModeConfig) Mode {
	if m.ADX < cfg.ADXLimit && m.CrossesPerHour >= cfg.CrossMin && m.TouchesPerHour >= cfg.TouchMin {
		return ModeDynamicGrid
	}
	return ModePause
}
