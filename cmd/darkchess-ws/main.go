package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/darkchess-server/internal/config"
	"github.com/park285/darkchess-server/internal/fanout"
	"github.com/park285/darkchess-server/internal/notify"
	"github.com/park285/darkchess-server/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	broker, err := notify.NewBroker(cfg.RedisURL, cfg.WSChannel)
	if err != nil {
		log.Fatalf("event broker init error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sub := broker.Subscribe(ctx)
	hub := fanout.NewHub()
	go hub.Run(ctx, sub.C)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	obslog.L().Info("ws_listening", zap.String("addr", cfg.WSAddr), zap.String("channel", cfg.WSChannel))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			log.Fatalf("ws server error: %v", err)
		}
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = srv.Shutdown(shCtx)
	shCancel()
	cancel()
	_ = sub.Close()
	_ = broker.Close()
}
