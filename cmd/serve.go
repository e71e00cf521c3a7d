package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/staffv/kbstore/api"
	"github.com/staffv/kbstore/internal/log"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, cfg, cleanup, err := setup(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		logger := log.New(log.Config{
			Level: parseLevel(cfg.LogLevel),
			JSON:  cfg.LogJSON,
		})

		server := api.NewServer(svc, logger)
		return server.Run(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", api.DefaultAddr, "listen address")
	rootCmd.AddCommand(serveCmd)
}
