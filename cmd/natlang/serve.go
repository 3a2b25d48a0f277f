package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/natlang-core/core/signals/wsrelay"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	var anyOrigin bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation over a WebSocket at /ws",
		Long: `Starts an HTTP server exposing a single conversation over a WebSocket.

Every signal of the conversation is sent to connected clients as
{"kind": ..., "timestamp": ..., "data": ...}. Clients send commands such as
{"type": "submit", "prompt": "What time is it?"}.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, anyOrigin, logger)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on, overrides the config file")
	cmd.Flags().BoolVar(&anyOrigin, "any-origin", false, "Accept WebSocket connections from any origin")
	return cmd
}

func serve(ctx context.Context, cfg *Config, anyOrigin bool, logger *slog.Logger) error {
	conversation, err := newConversation(ctx, cfg)
	if err != nil {
		return err
	}

	var relayOpts []wsrelay.Option
	if anyOrigin {
		relayOpts = append(relayOpts, wsrelay.WithCheckOrigin(func(*http.Request) bool { return true }))
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsrelay.New(conversation, relayOpts...))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("serving conversation", "address", cfg.Listen, "model", cfg.Model)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	conversation.CancelTurn()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
