package sizer

import (
	"math"
	"strings"

	"grid-box-finder-go/internal/models"

	"github.com/shopspring/decimal"
)

// ExchangeFilters are the quantization limits of one market. Any field may
// be zero when the exchange omits it.
type ExchangeFilters struct {
	PriceTick   float64 `json:"price_tick"`
	QtyStep     float64 `json:"qty_step"`
	MinNotional float64 `json:"min_notional"`
	MinQty      float64 `json:"min_qty"`
	MinPrice    float64 `json:"min_price"`
}

// DefaultFilters are the conservative fallbacks for missing tick, step and
// min-notional values.
func DefaultFilters() ExchangeFilters {
	return ExchangeFilters{
		PriceTick:   0.0001,
		QtyStep:     0.0001,
		MinNotional: 5.0,
	}
}

// FiltersFromConfig builds fallbacks from the sizer config, keeping the
// built-in value for anything left at zero.
func FiltersFromConfig(cfg models.SizerConfig) ExchangeFilters {
	f := DefaultFilters()
	if cfg.DefaultPriceTick > 0 {
		f.PriceTick = cfg.DefaultPriceTick
	}
	if cfg.DefaultQtyStep > 0 {
		f.QtyStep = cfg.DefaultQtyStep
	}
	if cfg.DefaultMinNotional > 0 {
		f.MinNotional = cfg.DefaultMinNotional
	}
	return f
}

// ExtractFilters reads the market record in priority order: the filter list,
// then the declared precisions, then defaults.
func ExtractFilters(info *models.SymbolInfo, defaults ExchangeFilters) ExchangeFilters {
	var f ExchangeFilters
	if info == nil {
		return defaults
	}

	for _, flt := range info.Filters {
		ft := strings.ToUpper(flt.FilterType)
		switch ft {
		case "PRICE_FILTER":
			if v := parseFloat(flt.TickSize); v > 0 {
				f.PriceTick = v
			}
			if v := parseFloat(flt.MinPrice); v > 0 {
				f.MinPrice = v
			}
		case "LOT_SIZE", "MARKET_LOT_SIZE":
			// LOT_SIZE governs limit orders; MARKET_LOT_SIZE only fills gaps
			if v := parseFloat(flt.StepSize); v > 0 && (f.QtyStep == 0 || ft == "LOT_SIZE") {
				f.QtyStep = v
			}
			if v := parseFloat(flt.MinQty); v > 0 && (f.MinQty == 0 || ft == "LOT_SIZE") {
				f.MinQty = v
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			f.MinNotional = math.Max(f.MinNotional, parseFloat(flt.MinNotional))
			f.MinNotional = math.Max(f.MinNotional, parseFloat(flt.Notional))
		}
	}

	if f.PriceTick <= 0 && info.PricePrecision > 0 {
		f.PriceTick = math.Pow10(-info.PricePrecision)
	}
	if f.QtyStep <= 0 && info.QuantityPrecision > 0 {
		f.QtyStep = math.Pow10(-info.QuantityPrecision)
	}

	if f.PriceTick <= 0 {
		f.PriceTick = defaults.PriceTick
	}
	if f.QtyStep <= 0 {
		f.QtyStep = defaults.QtyStep
	}
	if f.MinNotional <= 0 {
		f.MinNotional = defaults.MinNotional
	}
	return f
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	v, _ := d.Float64()
	return v
}
