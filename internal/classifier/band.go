package classifier

import "math"

// SuggestedBand is a grid band centred on the last price.
type SuggestedBand struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Levels int     `json:"levels"`
}

// SuggestBand sizes a band of width clamp(ATRMult*atr%, WidthMin, WidthMax),
// widened to at least MinKATR ATRs, centred on last.
func (c *Classifier) SuggestBand(last, atrAbs float64) SuggestedBand {
	g := c.cfg.Grid
	if last <= 0 {
		return SuggestedBand{Lower: last, Upper: last, Levels: g.Count}
	}
	atrPct := atrAbs / last
	width := math.Max(g.WidthMin, math.Min(g.WidthMax, atrPct*g.ATRMult))
	if g.MinKATR > 0 {
		width = math.Max(width, g.MinKATR*atrAbs/last)
	}
	half := last * width / 2
	return SuggestedBand{Lower: last - half, Upper: last + half, Levels: g.Count}
}
