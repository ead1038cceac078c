package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/styler/internal/handlers"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the style transfer HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().String("port", "8080", "port to listen on")
	a.bind("server.port", cmd.Flags().Lookup("port"))

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, engine, err := a.loadPipeline()
	if err != nil {
		return err
	}
	defer engine.Close()

	handler := handlers.NewHandler(p, engine.Info(), handlers.Options{
		MaxUploadBytes: a.cfg.Server.MaxUploadMB << 20,
		MaxPixels:      a.cfg.Pipeline.MaxPixels,
		Defaults:       a.cfg.Pipeline.Defaults(),
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().
		Str("port", a.cfg.Server.Port).
		Str("model", engine.Info().Identifier).
		Strs("endpoints", []string{"GET /health", "GET /model", "POST /stylize"}).
		Msg("server starting")
	log.Debug().Msgf("upload test: curl -X POST -F content=@photo.jpg -F style=@painting.jpg "+
		"-F density=0.5 -o out.png http://localhost:%s/stylize", a.cfg.Server.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
