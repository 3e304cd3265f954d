package classifier

import "sort"

// Candidate is one classified symbol ready for ranking and reporting.
type Candidate struct {
	Symbol      string          `json:"symbol"`
	Last        float64         `json:"last"`
	QuoteVolume float64         `json:"quote_volume"`
	Result      Result          `json:"result"`
	Windows     Windows         `json:"-"`
	PingPong    *PingPongResult `json:"pingpong,omitempty"`
	Fast        *FastResult     `json:"fast,omitempty"`
	Band        SuggestedBand   `json:"band"`
}

// PingPongOK reports whether the ping-pong tier ran and passed.
func (c Candidate) PingPongOK() bool {
	return c.PingPong != nil && c.PingPong.OK
}

// FastOK reports whether the fast-S tier ran and passed.
func (c Candidate) FastOK() bool {
	return c.Fast != nil && c.Fast.OK
}

// Activity is ATR% times range%, preferring the ping-pong measurements.
func (c Candidate) Activity() float64 {
	if c.PingPong != nil {
		return c.PingPong.ATRPct * c.PingPong.RangePct
	}
	return c.Windows.Short.ATRPct * c.Windows.Long.RangePct
}

// Rank sorts candidates in place: by verdict, ping-pong OK first, fast OK
// first, score descending, activity descending, then symbol.
func Rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if ra, rb := a.Result.Verdict.rank(), b.Result.Verdict.rank(); ra != rb {
			return ra < rb
		}
		if a.PingPongOK() != b.PingPongOK() {
			return a.PingPongOK()
		}
		if a.FastOK() != b.FastOK() {
			return a.FastOK()
		}
		if a.Result.Score != b.Result.Score {
			return a.Result.Score > b.Result.Score
		}
		if aa, ab := a.Activity(), b.Activity(); aa != ab {
			return aa > ab
		}
		return a.Symbol < b.Symbol
	})
}
