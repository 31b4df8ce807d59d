package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/cointax/internal/services/history"
	"github.com/vadiminshakov/cointax/internal/services/tax"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reconcile every tracked address and print the holdings",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.ReconcileAndRecord(cmd.Context())
		if err != nil {
			return err
		}

		renderReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var chartWindow string

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Print the portfolio value over a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := history.ParseWindow(chartWindow)
		if err != nil {
			return err
		}

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		series, err := report.Series(window)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Portfolio value, "+string(series.Window)))
		t := newTable("Date", "Value", "Note")
		for _, p := range series.Points {
			note := ""
			switch {
			case p.Current:
				note = "now"
			case len(p.Missing) > 0:
				note = warnStyle.Render(fmt.Sprintf("missing %v", p.Missing))
			case len(p.Insufficient) > 0:
				note = warnStyle.Render(fmt.Sprintf("insufficient history %v", p.Insufficient))
			}
			t.Row(p.At.Format(time.DateOnly), usd(p.Total), note)
		}
		fmt.Fprintln(out, t.String())
		return nil
	},
}

var (
	taxYear   int
	taxIncome string
)

var taxCmd = &cobra.Command{
	Use:   "tax",
	Short: "Summarize realized gains of a year and estimate the tax",
	RunE: func(cmd *cobra.Command, args []string) error {
		income := g.cfg.Tax.OtherIncome
		if taxIncome != "" {
			v, err := decimal.NewFromString(taxIncome)
			if err != nil || v.IsNegative() {
				return fmt.Errorf("invalid --income %q", taxIncome)
			}
			income = v
		}

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		year := taxYear
		if year == 0 {
			year = app.ReportingYear(time.Now())
		}

		report, err := app.Reconcile(cmd.Context())
		if err != nil {
			return err
		}

		totals := report.Tax(year)
		est := totals.Estimate(income, g.cfg.Tax.ShortTerm, g.cfg.Tax.LongTerm)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Realized gains "+strconv.Itoa(year)))
		t := newTable("", "Short-term", "Long-term")
		t.Row("Lots", strconv.Itoa(totals.ShortLots), strconv.Itoa(totals.LongLots))
		t.Row("Gains", signed(totals.Short, usd(totals.Short)), signed(totals.Long, usd(totals.Long)))
		t.Row("Rate", pct(est.ShortRate), pct(est.LongRate))
		t.Row("Tax", usd(est.ShortTax), usd(est.LongTax))
		fmt.Fprintln(out, t.String())
		fmt.Fprintf(out, "Total gains %s, estimated tax %s\n", usd(totals.Total()), usd(est.ShortTax.Add(est.LongTax)))

		if totals.Unpriced > 0 {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%d lots without prices are not included", totals.Unpriced)))
		}
		for asset, qty := range totals.Unmatched {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%s %s sold without a matching buy", qty, asset)))
		}
		if years := tax.Years(report.Matches.Lots); len(years) > 0 {
			fmt.Fprintf(out, "years with realized gains: %v\n", years)
		}
		return nil
	},
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func init() {
	chartCmd.Flags().StringVarP(&chartWindow, "window", "w", string(history.Window1M),
		"time window: ALL, 3Y, 1Y, 3M, 1M or 5D")
	taxCmd.Flags().IntVar(&taxYear, "year", 0, "tax year (default: from config, else the previous calendar year)")
	taxCmd.Flags().StringVar(&taxIncome, "income", "", "other taxable income in USD (default: from config)")
}
