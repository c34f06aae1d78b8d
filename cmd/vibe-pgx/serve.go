package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/inodb/vibe-pgx/internal/api"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: `  vibe-pgx serve
  vibe-pgx serve --port 9090 --history`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}

	cmd.Flags().String("host", "", "Listen host (default: server.host)")
	cmd.Flags().Int("port", 0, "Listen port (default: server.port)")
	cmd.Flags().Bool("history", false, "Record every analysis in the history database")
	cmd.Flags().Bool("explain", false, "Fetch explanations from the configured explanation service")
	_ = a.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = a.v.BindPFlag("history.enabled", cmd.Flags().Lookup("history"))
	_ = a.v.BindPFlag("explanation.enabled", cmd.Flags().Lookup("explain"))

	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	if a.cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	analyzer, table, err := a.newAnalyzer()
	if err != nil {
		return err
	}
	explainer, err := a.newExplainer(false)
	if err != nil {
		return err
	}

	opts := api.Options{
		Analyzer:       analyzer,
		Explainer:      explainer,
		Drugs:          table.Drugs(),
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		Version:        version,
		Logger:         a.logger,
		Addr:           a.cfg.Server.Addr(),
		ReadTimeout:    a.cfg.Server.ReadTimeout,
		WriteTimeout:   a.cfg.Server.WriteTimeout,
	}

	store, err := a.openHistory(false)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts.History = store
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.NewServer(opts).Start(ctx)
}
