package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/cointax/internal/export"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
)

var (
	exportOut   string
	exportAsset string
	exportType  string
	exportOrder string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger or the gain lots as CSV",
}

var exportLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Export the filtered transaction ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := export.ParseFilter(exportAsset, exportType, exportOrder)
		if err != nil {
			return err
		}

		return exportReport(cmd, orDefault(exportOut, "transactions.csv"), func(w io.Writer, r *reconciler.Report) (int, error) {
			rows := export.Apply(r.Ledger, filter)
			return len(rows), export.WriteLedger(w, rows)
		})
	},
}

var exportLotsCmd = &cobra.Command{
	Use:   "lots",
	Short: "Export the FIFO gain lots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportReport(cmd, orDefault(exportOut, "gain-lots.csv"), func(w io.Writer, r *reconciler.Report) (int, error) {
			return len(r.Matches.Lots), export.WriteLots(w, r.Matches.Lots)
		})
	},
}

// exportReport reconciles and writes the CSV to path, "-" writes to stdout.
func exportReport(cmd *cobra.Command, path string, write func(io.Writer, *reconciler.Report) (int, error)) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	if path == "-" {
		_, err := write(cmd.OutOrStdout(), report)
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create export dir")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create export file")
	}

	n, err := write(f, report)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ %d rows written to %s", n, path)))
	renderDegraded(cmd.ErrOrStderr(), report)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOut, "out", "o", "", "output file, - for stdout")
	exportLedgerCmd.Flags().StringVar(&exportAsset, "asset", "all", "BTC, ETH, LTC or all")
	exportLedgerCmd.Flags().StringVar(&exportType, "type", "all", "IN, OUT or all")
	exportLedgerCmd.Flags().StringVar(&exportOrder, "order", string(export.NewestFirst), "desc (newest first) or asc")

	exportCmd.AddCommand(exportLedgerCmd, exportLotsCmd)
}
