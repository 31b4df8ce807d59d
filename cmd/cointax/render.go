package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#C58A00", Dark: "#F0B429"}
	danger    = lipgloss.AdaptiveColor{Light: "#D13C3C", Dark: "#EF5B5B"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	upStyle      = lipgloss.NewStyle().Foreground(special)
	downStyle    = lipgloss.NewStyle().Foreground(danger)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(highlight)
	successStyle = lipgloss.NewStyle().Foreground(special)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func usd(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func signed(d decimal.Decimal, s string) string {
	if d.IsNegative() {
		return downStyle.Render(s)
	}
	return upStyle.Render(s)
}

func renderHoldings(w io.Writer, r *reconciler.Report) {
	t := newTable("Asset", "Amount", "Price", "Value", "Share")
	for _, h := range r.Holdings() {
		price, value := "n/a", "n/a"
		if h.Price.Valid {
			price = usd(h.Price.Decimal)
		}
		if h.Fiat.Valid {
			value = usd(h.Fiat.Decimal)
		}
		asset := h.Asset.String()
		if h.Incomplete {
			asset += warnStyle.Render(" !")
		}
		t.Row(asset, h.Quantity.String(), price, value, h.Share.Mul(decimal.NewFromInt(100)).StringFixed(1)+"%")
	}

	fmt.Fprintln(w, t.String())
}

func renderReport(w io.Writer, r *reconciler.Report) {
	header := titleStyle.Render("Portfolio " + usd(r.Snapshot.Total()))
	if c, err := r.Change24h(); err == nil {
		header += "  24h " + signed(c.Abs, fmt.Sprintf("%s (%s%%)", usd(c.Abs), c.Percent.StringFixed(2)))
	}
	fmt.Fprintln(w, header)
	renderHoldings(w, r)
	fmt.Fprintf(w, "%d transactions, %d gain lots\n", len(r.Ledger), len(r.Matches.Lots))
	renderDegraded(w, r)
}

func renderDegraded(w io.Writer, r *reconciler.Report) {
	var notes []string
	for _, a := range r.IncompleteAssets() {
		notes = append(notes, fmt.Sprintf("%s incomplete: %v", a, r.Incomplete[a]))
	}
	for _, a := range domain.Assets {
		if err, ok := r.PriceErrors[a]; ok {
			notes = append(notes, fmt.Sprintf("%s prices unavailable: %v", a, err))
		}
	}
	for _, a := range r.UnvaluedAssets() {
		notes = append(notes, fmt.Sprintf("%s holdings not in the total: %v", a, r.Unvalued[a]))
	}
	if n := r.Unpriced(); n > 0 {
		notes = append(notes, fmt.Sprintf("%d transactions without a USD value", n))
	}
	for _, issue := range r.Issues {
		notes = append(notes, fmt.Sprintf("%s %s skipped: %s", issue.Asset, issue.ExternalID, issue.Reason))
	}
	if len(notes) == 0 {
		return
	}

	fmt.Fprintln(w, warnStyle.Render("warnings:\n  "+strings.Join(notes, "\n  ")))
}
