package retuner

import (
	"fmt"
	"time"

	"grid-box-finder-go/internal/models"
)

// hysteresisGap is the distance between hi and lo when only one ADX limit is configured.
const hysteresisGap = 7.0

// GuardConfig holds the trend/volatility guard thresholds.
type GuardConfig struct {
	ADXHi     float64
	ADXLo     float64
	Cooldown  time.Duration
	ConsecN   int
	SpikeFast int
	SpikeSlow int
	SpikeMult float64
}

// DefaultGuardConfig returns hi 35 / lo 28, 60s cooldown and a debounce of 3.
func DefaultGuardConfig() GuardConfig {
	return NewGuardConfig(35)
}

// NewGuardConfig derives the hysteresis band from a single ADX limit.
func NewGuardConfig(limit float64) GuardConfig {
	return GuardConfig{
		ADXHi:     limit,
		ADXLo:     limit - hysteresisGap,
		Cooldown:  60 * time.Second,
		ConsecN:   3,
		SpikeFast: 20,
		SpikeSlow: 120,
		SpikeMult: 2.0,
	}
}

// Validate rejects configurations that would flap or never pause.
func (c GuardConfig) Validate() error {
	if !(c.ADXLo < c.ADXHi) {
		return fmt.Errorf("adx lo %.2f must be below hi %.2f", c.ADXLo, c.ADXHi)
	}
	if c.ConsecN < 1 {
		return fmt.Errorf("guard debounce must be >= 1, got %d", c.ConsecN)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("guard cooldown must be >= 0, got %s", c.Cooldown)
	}
	return nil
}

// Decision is the outcome of one guard observation.
type Decision struct {
	ADX          float64
	TrendBlocked bool
	Spike        bool
	Hits         int  // consecutive guarded iterations, before any reset
	Pause        bool // cancel orders and skip retuning this iteration
	StartedNow   bool // this iteration armed the cooldown
	CooldownLeft time.Duration
	Bucket       string
	Notify       bool // pause started or the ADX bucket moved
}

// Guard is the hysteresis/debounce/cooldown state machine of one symbol.
// It is not safe for concurrent use; each retuner owns its own.
type Guard struct {
	cfg   GuardConfig
	state models.GuardState
}

// NewGuard resumes from a persisted state; pass the zero value for a fresh start.
func NewGuard(cfg GuardConfig, state models.GuardState) *Guard {
	return &Guard{cfg: cfg, state: state}
}

// Observe feeds one iteration's readings.
func (g *Guard) Observe(adx float64, spike bool, now time.Time) Decision {
	s := &g.state
	if s.TrendBlocked {
		if adx <= g.cfg.ADXLo {
			s.TrendBlocked = false
		}
	} else if adx >= g.cfg.ADXHi {
		s.TrendBlocked = true
	}

	if s.TrendBlocked || spike {
		s.ConsecutiveHits++
	} else {
		s.ConsecutiveHits = 0
	}

	d := Decision{
		ADX:          adx,
		TrendBlocked: s.TrendBlocked,
		Spike:        spike,
		Hits:         s.ConsecutiveHits,
		Bucket:       ADXBucket(adx),
	}

	inCooldown := !s.LastGuardTime.IsZero() && now.Sub(s.LastGuardTime) < g.cfg.Cooldown
	if s.ConsecutiveHits < g.cfg.ConsecN && !inCooldown {
		return d
	}

	d.Pause = true
	if s.ConsecutiveHits >= g.cfg.ConsecN {
		// only the triggering iteration re-arms the cooldown
		s.LastGuardTime = now
		s.ConsecutiveHits = 0
		d.StartedNow = true
	}
	if left := g.cfg.Cooldown - now.Sub(s.LastGuardTime); left > 0 {
		d.CooldownLeft = left
	}
	d.Notify = d.StartedNow || s.LastBucket != d.Bucket
	s.LastBucket = d.Bucket
	return d
}

// State returns a copy of the guard state for persistence.
func (g *Guard) State() models.GuardState {
	return g.state
}

// ADXBucket groups ADX readings so repeated pause notices only fire on a real move.
func ADXBucket(adx float64) string {
	switch {
	case adx >= 60:
		return "hi_60p"
	case adx >= 45:
		return "hi_45_60"
	case adx >= 35:
		return "hi_35_45"
	case adx >= 28:
		return "lo_28_35"
	default:
		return "lo_<28"
	}
}
