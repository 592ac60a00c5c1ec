package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ukaji3/semsim-go/pkg/semsim/embedding"
	"github.com/ukaji3/semsim-go/pkg/semsim/jobs"
	"github.com/ukaji3/semsim-go/pkg/semsim/server"
)

var serveAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scoring service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup(true)
	if err != nil {
		return err
	}
	defer closer.Close()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	svc, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}
	defer svc.Close()
	logger.Info("embedding backend ready", "provider", cfg.Embedding.Provider, "model", svc.Model())

	store, err := jobs.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("job ledger: %w", err)
	}
	defer store.Close()

	srv, err := server.New(cfg, svc, store, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.ListenAndServe(cmd.Context())
}
