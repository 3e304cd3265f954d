package sizer

import "github.com/shopspring/decimal"

// RoundMode selects the direction RoundStep quantizes in.
type RoundMode int

const (
	RoundDown RoundMode = iota
	RoundUp
	RoundNearest
)

// guard absorbs representation error so values already on the grid stay put.
var guard = decimal.New(1, -12)

// RoundStep quantizes x to a multiple of step. A non-positive step returns x
// unchanged. The division runs in decimal so 0.3/0.1 lands on 3, not 2.
func RoundStep(x, step float64, mode RoundMode) float64 {
	if step <= 0 {
		return x
	}
	ds := decimal.NewFromFloat(step)
	n := decimal.NewFromFloat(x).Div(ds)
	switch mode {
	case RoundUp:
		n = n.Sub(guard).Ceil()
	case RoundNearest:
		n = n.Round(0)
	default:
		n = n.Add(guard).Floor()
	}
	v, _ := n.Mul(ds).Float64()
	return v
}

// notional is price*qty computed in decimal and rounded to 1e-10.
func notional(price, qty float64) float64 {
	v, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)).Round(10).Float64()
	return v
}
