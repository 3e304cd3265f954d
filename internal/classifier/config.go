package classifier

import (
	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/models"
)

// Config is the immutable threshold set shared by every tier.
type Config = models.ClassifierConfig

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Regime: models.RegimeConfig{
			QLow:       0.10,
			QHigh:      0.90,
			Eps:        0.0025,
			RangeMin:   0.05,
			SlopeMax:   0.006,
			ContainMin: 0.65,
		},
		Activation: models.ActivationConfig{
			QLow:       0.15,
			QHigh:      0.85,
			Eps:        0.0025,
			ATRPeriod:  14,
			ContainMin: 0.70,
			ATRMin:     0.006,
			TouchMin:   10,
			AltMin:     6,
		},
		SPattern: models.SPatternConfig{
			QLow:        0.20,
			QHigh:       0.80,
			Eps:         0.0015,
			CVChunk:     20,
			AltRatioMin: 0.5,
			BalanceMax:  0.4,
			CVMax:       0.60,
			DriftMax:    0.004,
			ContainMin:  0.70,
		},
		PingPong: models.PingPongConfig{
			ATRPeriod:      50,
			ADXPeriod:      14,
			SMAPeriod:      20,
			Window:         180,
			ADXWindow:      150,
			ATRPctMin:      0.0025,
			RangePctMin:    0.015,
			ADXMax:         13,
			MidCrossMin:    18,
			DriftMaxRatio:  0.15,
			MinQuoteVolume: 1_000_000,
			ListedMinDays:  30,
		},
		Fast: models.FastConfig{
			MinBars:               120,
			SMAPeriod:             20,
			MinCrossesPerHour:     10,
			CycleMinMinutes:       5,
			CycleMaxMinutes:       35,
			MinEdgeTouchesPerHour: 6,
			EdgeQLow:              0.2,
			EdgeQHigh:             0.8,
			WideMinRangePct:       0.04,
		},
		Grid: models.GridSuggestConfig{
			Count:    12,
			ATRMult:  6,
			WidthMin: 0.02,
			WidthMax: 0.06,
			MinKATR:  1.0,
		},
		Weights: models.ScoreWeights{
			LongRange:    0.4,
			LongInside:   0.2,
			LongTouch:    0.1,
			LongAlt:      0.1,
			LongSlope:    0.3,
			ShortATR:     0.3,
			ShortTouch:   0.2,
			ShortAlt:     0.2,
			ShortInside:  0.2,
			ShortSlope:   0.3,
			AltRatio:     10,
			Imbalance:    10,
			VolatilityCV: 5,
		},
	}
}

// regimeParams, activationParams and sPatternParams map each tier onto the
// indicator window it is measured with.
func regimeParams(cfg Config, barMinutes float64) indicator.WindowParams {
	p := baseParams(cfg, barMinutes)
	p.QLow, p.QHigh, p.Eps = cfg.Regime.QLow, cfg.Regime.QHigh, cfg.Regime.Eps
	return p
}

func activationParams(cfg Config, barMinutes float64) indicator.WindowParams {
	p := baseParams(cfg, barMinutes)
	p.QLow, p.QHigh, p.Eps = cfg.Activation.QLow, cfg.Activation.QHigh, cfg.Activation.Eps
	return p
}

func sPatternParams(cfg Config, barMinutes float64) indicator.WindowParams {
	p := baseParams(cfg, barMinutes)
	p.QLow, p.QHigh, p.Eps = cfg.SPattern.QLow, cfg.SPattern.QHigh, cfg.SPattern.Eps
	return p
}

func baseParams(cfg Config, barMinutes float64) indicator.WindowParams {
	p := indicator.DefaultWindowParams()
	if cfg.Activation.ATRPeriod > 0 {
		p.ATRPeriod = cfg.Activation.ATRPeriod
	}
	if cfg.SPattern.CVChunk > 0 {
		p.CVChunk = cfg.SPattern.CVChunk
	}
	if barMinutes > 0 {
		p.BarMinutes = barMinutes
	}
	return p
}
