package indicator

import (
	"math"

	"grid-box-finder-go/internal/models"
)

// SlopePct fits a least-squares line against a zero-centred bar index and
// returns |slope*N/2| / mean(closes), the projected half-window displacement
// as a fraction of the mean price.
func SlopePct(closes []float64) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}
	m := mean(closes)
	if math.Abs(m) <= epsilon {
		return 0
	}
	centre := float64(n-1) / 2
	var sxy, sxx float64
	for i, y := range closes {
		x := float64(i) - centre
		sxy += x * (y - m)
		sxx += x * x
	}
	slope := sxy / sxx
	return math.Abs(slope*float64(n)/2) / math.Abs(m)
}

// ADX returns the mean of the last period DX values, with +DM/-DM and true
// range Wilder-smoothed over period. Short histories report ADXSentinel.
func ADX(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return ADXSentinel
	}

	n := len(candles) - 1
	trs := make([]float64, 0, n)
	pdms := make([]float64, 0, n)
	ndms := make([]float64, 0, n)
	prev := candles[0]
	for _, cur := range candles[1:] {
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		plus := math.Max(up, 0)
		minus := math.Max(down, 0)
		if plus < minus {
			plus = 0
		} else if minus < plus {
			minus = 0
		}
		trs = append(trs, trueRange(cur, prev.Close))
		pdms = append(pdms, plus)
		ndms = append(ndms, minus)
		prev = cur
	}

	atr := wilderSmooth(trs, period)
	pdi := wilderSmooth(pdms, period)
	ndi := wilderSmooth(ndms, period)

	dx := make([]float64, len(atr))
	for i := range atr {
		var plusDI, minusDI float64
		if atr[i] > 0 {
			plusDI = pdi[i] / atr[i] * 100
			minusDI = ndi[i] / atr[i] * 100
		}
		if denom := plusDI + minusDI; denom > 0 {
			dx[i] = math.Abs(plusDI-minusDI) / denom * 100
		}
	}
	if len(dx) < period {
		return ADXSentinel
	}
	return mean(dx[len(dx)-period:])
}

// wilderSmooth seeds with the sum of the first period values and then applies
// sm = sm - sm/period + x.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	var sm float64
	for _, v := range values[:period] {
		sm += v
	}
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, sm)
	for _, v := range values[period:] {
		sm = sm - sm/float64(period) + v
		out = append(out, sm)
	}
	return out
}
