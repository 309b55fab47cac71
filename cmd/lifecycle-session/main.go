// Command lifecycle-session follows one principal's orders and appointments:
// it loads the first page of each over HTTP, merges pushed events from Kafka
// and logs every notification until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"

	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/client"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/reconcile"
	"lifecycle-service/internal/session"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "lifecycle-session").Logger()

func main() {
	cfg, err := config.LoadSession()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	principal, err := auth.PeekPrincipal(cfg.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid token")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.BaseURL, cfg.Token)
	sub := bus.NewKafkaSubscriber(config.NewKafkaReaderFactory(cfg.Brokers), cfg.Topology, cfg.GroupPrefix)

	reconnected := make(chan struct{}, 1)
	var wasDown atomic.Bool
	sub.OnState = func(state bus.State) {
		logger.Info().Stringer("state", state).Msg("Realtime transport")
		switch state {
		case bus.StateReconnecting:
			wasDown.Store(true)
		case bus.StateConnected:
			if wasDown.Swap(false) {
				select {
				case reconnected <- struct{}{}:
				default:
				}
			}
		}
	}

	s, err := session.Start(ctx, session.Config{
		Principal:  principal,
		Backend:    api,
		Subscriber: sub,
		Timeout:    cfg.Timeout,
		PageSize:   cfg.PageSize,
		Notifier: reconcile.NotifierFunc(func(n reconcile.Notification) {
			logger.Info().Str("entity", string(n.Entity)).Str("id", n.ID).Str("status", n.Status).Msg(n.Message)
		}),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start session")
	}
	defer s.Close()

	if err := s.Refresh(ctx); err != nil {
		logger.Error().Err(err).Msg("Initial load failed")
	}
	logger.Info().
		Str("user_id", principal.UserID).
		Int("orders", s.Orders().Len()).
		Int("appointments", s.Appointments().Len()).
		Msg("Session ready")

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconnected:
			// Events published while disconnected were missed.
			if err := s.Refresh(ctx); err != nil {
				logger.Error().Err(err).Msg("Refresh after reconnect failed")
			}
		}
	}
}
