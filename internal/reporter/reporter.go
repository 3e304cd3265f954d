// Package reporter renders scan results and grid plans for the terminal and CSV.
package reporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"grid-box-finder-go/internal/classifier"
	"grid-box-finder-go/internal/sizer"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderCandidates 打印排序后的候选列表，limit<=0 表示全部
func RenderCandidates(w io.Writer, cands []classifier.Candidate, limit int) {
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	t := newTable(w)
	t.SetTitle("Grid box candidates")
	t.AppendHeader(table.Row{"#", "Symbol", "Verdict", "Score", "Box low", "Box high", "Grid", "PP", "Fast", "ADX", "Tags"})
	for i, c := range cands {
		box := c.Windows.Long.Band
		adx := "-"
		if c.PingPong != nil {
			adx = fmt.Sprintf("%.1f", c.PingPong.ADX)
		}
		t.AppendRow(table.Row{
			i + 1,
			c.Symbol,
			verdictMark(c.Result.Verdict),
			fmt.Sprintf("%.1f", c.Result.Score),
			num(box.Low),
			num(box.High),
			fmt.Sprintf("%s … %s ×%d", num(c.Band.Lower), num(c.Band.Upper), c.Band.Levels),
			flag(c.PingPong != nil, c.PingPongOK()),
			flag(c.Fast != nil, c.FastOK()),
			adx,
			strings.Join(tags(c), ","),
		})
	}
	if len(cands) == 0 {
		t.AppendRow(table.Row{"", "(no candidates)"})
	}
	t.Render()
}

// RenderPlan 打印市场过滤器摘要与挂单表
func RenderPlan(w io.Writer, plan *sizer.GridPlan) {
	summary := newTable(w)
	summary.SetTitle(fmt.Sprintf("%s grid plan", plan.Symbol))
	summary.AppendRows([]table.Row{
		{"band", fmt.Sprintf("%s … %s (mid %s)", num(plan.Lower), num(plan.Upper), num(plan.Mid))},
		{"levels", plan.Levels},
		{"step", fmt.Sprintf("%s (%.3f%%)", num(plan.StepAbs), plan.StepPct*100)},
		{"reference", num(plan.Reference)},
		{"capital", fmt.Sprintf("%.2f, reserve %.1f%%", plan.Capital, plan.Reserve*100)},
		{"per order", fmt.Sprintf("%.4f", plan.PerOrderQuote)},
		{"filters", fmt.Sprintf("tick %s step %s minNotional %s", num(plan.Filters.PriceTick), num(plan.Filters.QtyStep), num(plan.Filters.MinNotional))},
		{"stop loss", fmt.Sprintf("%s / %s", num(plan.SLLower), num(plan.SLUpper))},
		{"total quote", fmt.Sprintf("%.4f", plan.TotalQuote)},
	})
	if plan.ExtraQuoteNeeded > 0 {
		summary.AppendRow(table.Row{"extra quote", fmt.Sprintf("%.4f (min notional)", plan.ExtraQuoteNeeded)})
	}
	summary.Render()

	orders := newTable(w)
	orders.AppendHeader(table.Row{"Lvl", "Side", "Price", "Qty", "Notional", "TP"})
	for _, o := range plan.Orders {
		orders.AppendRow(table.Row{o.LevelIndex, string(o.Side), num(o.Price), num(o.Qty), fmt.Sprintf("%.4f", o.Notional), num(o.TakeProfit)})
	}
	orders.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%.4f", plan.TotalQuote), ""})
	orders.Render()
}

// WritePlanCSV 以 CSV 输出挂单表：lvl,side,price,qty,notional,tp
func WritePlanCSV(w io.Writer, plan *sizer.GridPlan) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"lvl", "side", "price", "qty", "notional", "tp"})
	for _, o := range plan.Orders {
		t.AppendRow(table.Row{o.LevelIndex, string(o.Side), exact(o.Price), exact(o.Qty), exact(o.Notional), exact(o.TakeProfit)})
	}
	t.RenderCSV()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Title.Align = text.AlignLeft
	return t
}

func verdictMark(v classifier.Verdict) string {
	switch v {
	case classifier.VerdictConfirmed:
		return "✅ " + string(v)
	case classifier.VerdictNearMiss:
		return "🟡 " + string(v)
	case classifier.VerdictWatch:
		return "👀 " + string(v)
	default:
		return "✗ " + string(v)
	}
}

func flag(ran, ok bool) string {
	switch {
	case !ran:
		return "-"
	case ok:
		return "OK"
	default:
		return "no"
	}
}

// tags merges classifier and ping-pong reasons without duplicates.
func tags(c classifier.Candidate) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(rs []classifier.Reason) {
		for _, r := range rs {
			if !seen[string(r)] {
				seen[string(r)] = true
				out = append(out, string(r))
			}
		}
	}
	add(c.Result.Reasons)
	if c.PingPong != nil {
		add(c.PingPong.Reasons)
	}
	return out
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func exact(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
