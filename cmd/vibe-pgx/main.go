// Package main provides the vibe-pgx command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-pgx/internal/analysis"
	"github.com/inodb/vibe-pgx/internal/config"
	"github.com/inodb/vibe-pgx/internal/duckdb"
	"github.com/inodb/vibe-pgx/internal/explain"
	"github.com/inodb/vibe-pgx/internal/rules"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newApp().rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

// usageError marks errors caused by bad invocation rather than bad data.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs wraps a cobra argument validator so its failures exit with ExitUsage.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// app holds state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newApp() *app {
	return &app{
		v:      viper.New(),
		logger: zap.NewNop(),
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vibe-pgx",
		Short: "Pharmacogenomic clinical decision support",
		Long: `vibe-pgx reads a single-sample VCF, calls star alleles for six
pharmacogenes and reports drug risk with CPIC-based recommendations.`,
		Example: `  vibe-pgx analyze sample.vcf
  vibe-pgx analyze --drugs codeine,warfarin -f tab sample.vcf
  vibe-pgx serve --port 8080`,
		Args:              usageArgs(cobra.NoArgs),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return usagef("a command is required")
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (default: ~/"+config.FileName+")")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(a.newAnalyzeCmd())
	root.AddCommand(a.newDrugsCmd())
	root.AddCommand(a.newServeCmd())
	root.AddCommand(a.newHistoryCmd())
	root.AddCommand(a.newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// setup loads and validates the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := config.Init(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return &usageError{err: fmt.Errorf("invalid configuration: %w", err)}
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) loadRules() (*rules.Table, error) {
	if a.cfg.Rules.Path == "" {
		return rules.Default()
	}
	table, err := rules.LoadFile(a.cfg.Rules.Path)
	if err != nil {
		return nil, err
	}
	a.logger.Info("loaded rules", zap.String("path", a.cfg.Rules.Path), zap.Int("rules", table.Len()))
	return table, nil
}

func (a *app) newAnalyzer() (*analysis.Analyzer, *rules.Table, error) {
	table, err := a.loadRules()
	if err != nil {
		return nil, nil, err
	}
	an := analysis.NewAnalyzer(table)
	an.SetLogger(a.logger)
	an.SetWorkers(a.cfg.Analysis.Workers)
	return an, table, nil
}

// newExplainer returns nil when the explanation service is not in use.
func (a *app) newExplainer(force bool) (analysis.Explainer, error) {
	if !force && !a.cfg.Explanation.Enabled {
		return nil, nil
	}
	c, err := explain.New(a.cfg.Explanation.Config)
	if err != nil {
		return nil, err
	}
	c.SetLogger(a.logger)
	return c, nil
}

// openHistory returns nil when history is disabled.
func (a *app) openHistory(force bool) (*duckdb.Store, error) {
	if !force && !a.cfg.History.Enabled {
		return nil, nil
	}
	a.logger.Debug("opening history", zap.String("path", a.cfg.History.Path))
	return duckdb.Open(a.cfg.History.Path)
}
