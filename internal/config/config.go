package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	HTTPAddr string
	WSAddr   string

	RedisURL    string
	DatabaseURL string

	// WSChannel is the redis pub/sub channel the API publishes game
	// events to and the websocket server subscribes on.
	WSChannel string

	MsgcatDir string

	// CacheTTLSec bounds the per-session response cache.
	CacheTTLSec int

	// DrawOfferTTLSec bounds how long a draw offer stays pending.
	DrawOfferTTLSec int

	// PoolListLimit caps the browsable matchmaking pool listing.
	PoolListLimit int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:        ":8080",
		WSAddr:          ":8081",
		WSChannel:       "darkchess:events",
		CacheTTLSec:     30,
		DrawOfferTTLSec: 3600,
		PoolListLimit:   10,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_CHANNEL")); v != "" {
		cfg.WSChannel = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgcatDir = strings.TrimSpace(os.Getenv("MSGCAT_DIR"))

	if v := strings.TrimSpace(os.Getenv("CACHE_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRAW_OFFER_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DrawOfferTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("POOL_LIST_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PoolListLimit = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
