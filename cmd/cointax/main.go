// Command cointax reconciles BTC, ETH and LTC wallet histories into one USD ledger, matches FIFO tax lots and
// serves the result as a dashboard.
//
// Usage:
//
//	cointax setup
//	cointax addresses add BTC bc1q...
//	cointax report
//	cointax tax --year 2024 --income 85000
//	cointax export ledger --out transactions.csv
//	cointax serve
//
// Optional environment variables:
//
//	BLOCKCHAIRAPIKEY, ETHERSCANAPIKEY, CGAPIKEY
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/cointax/config"
	"github.com/vadiminshakov/cointax/internal"
)

const defaultConfigPath = "config.yaml"

type globals struct {
	configPath string
	debug      bool

	cfg    config.Config
	logger *zap.Logger
}

var g = &globals{}

var rootCmd = &cobra.Command{
	Use:           "cointax",
	Short:         "Multi-chain wallet ledger, FIFO tax lots and portfolio dashboard",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(g.configPath)
		if err != nil {
			return err
		}
		g.cfg = cfg

		logger, err := newLogger(g.debug, cmd.Name() == serveCmd.Name())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		g.logger = logger

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if g.logger != nil {
			_ = g.logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", defaultConfigPath, "path to the yaml config")
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "verbose development logging")

	rootCmd.AddCommand(reportCmd, chartCmd, taxCmd, exportCmd, serveCmd, addressesCmd, setupCmd)
}

// newLogger returns a production logger. Interactive commands only log warnings so tables stay readable.
func newLogger(debug, verbose bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}

	return cfg.Build()
}

// openApp wires the stores and the reconciler. The caller closes the app.
func openApp() (*internal.App, error) {
	return internal.NewApp(g.logger, g.cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}
