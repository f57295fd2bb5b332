package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/darkchess-server/internal/archive"
	appcfg "github.com/park285/darkchess-server/internal/config"
	"github.com/park285/darkchess-server/internal/httpapi"
	"github.com/park285/darkchess-server/internal/matchmaking"
	"github.com/park285/darkchess-server/internal/msgcat"
	"github.com/park285/darkchess-server/internal/notify"
	"github.com/park285/darkchess-server/internal/obslog"
	"github.com/park285/darkchess-server/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	store, err := session.NewStore(cfg.RedisURL,
		time.Duration(cfg.CacheTTLSec)*time.Second,
		time.Duration(cfg.DrawOfferTTLSec)*time.Second,
	)
	if err != nil {
		log.Fatalf("session store init error: %v", err)
	}
	sessions := session.NewManager(store)

	broker, err := notify.NewBroker(cfg.RedisURL, cfg.WSChannel)
	if err != nil {
		log.Fatalf("event broker init error: %v", err)
	}
	sessions.AttachPublisher(broker)

	mm, err := matchmaking.NewManager(cfg.RedisURL, sessions, cfg.PoolListLimit)
	if err != nil {
		log.Fatalf("matchmaking init error: %v", err)
	}

	srv := httpapi.NewServer(sessions, mm, cat)

	// Game archive is optional; without DATABASE_URL finished games
	// simply are not persisted and /history is disabled.
	var arch *archive.Repository
	if cfg.DatabaseURL != "" {
		arch, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		sessions.AttachArchiver(arch)
		srv.AttachArchive(arch)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpapi.Serve(ctx, cfg.HTTPAddr, srv.Handler())
	}()
	obslog.L().Info("api_listening", zap.String("addr", cfg.HTTPAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("shutdown_signal", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		cancel()
		if err != nil {
			log.Fatalf("http server error: %v", err)
		}
	}

	_ = broker.Close()
	_ = mm.Close()
	_ = store.Close()
	if arch != nil {
		_ = arch.Close()
	}
}
