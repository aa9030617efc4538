package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/vprism/vprism/internal/interfaces/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close()

			if !cmd.Flags().Changed("listen") && app.cfg.Listen != "" {
				listen = app.cfg.Listen
			}
			server, err := httpapi.NewServer(
				httpapi.DefaultServerConfig(listen), app.reg, app.rt, app.promReg)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(ctx)
			}
		},
	}

	serveCmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "Listen address")
	return serveCmd
}
