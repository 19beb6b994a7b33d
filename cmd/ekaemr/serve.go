package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/api"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the conversion API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			a, err := newApp(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			defer a.close()

			var conversionStore api.ConversionStore
			if a.store != nil {
				conversionStore = a.store
			}
			router := api.NewConvertRouter(a.converter, conversionStore, a.defaultOptions(), log)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router.SetupRoutes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("Starting server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)

			select {
			case err := <-serverErr:
				return err
			case <-stop:
			}

			log.Info().Msg("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			log.Info().Msg("Server stopped")
			return nil
		},
	}
}
