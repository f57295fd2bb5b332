package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/darkchess-server/internal/engine"
)

const (
	sessionTTL     = 45 * 24 * time.Hour
	updateAttempts = 5
)

// Store keeps sessions, token bindings, draw offers and the per-token
// response cache in redis. A session lives under a single key as a
// JSON blob so optimistic WATCH transactions cover the whole record.
type Store struct {
	rdb      *redis.Client
	cacheTTL time.Duration
	drawTTL  time.Duration
}

func NewStore(redisURL string, cacheTTL, drawTTL time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for session store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStoreFromClient(rdb, cacheTTL, drawTTL), nil
}

// NewStoreFromClient wraps an existing client, used by tests.
func NewStoreFromClient(rdb *redis.Client, cacheTTL, drawTTL time.Duration) *Store {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if drawTTL <= 0 {
		drawTTL = time.Hour
	}
	return &Store{rdb: rdb, cacheTTL: cacheTTL, drawTTL: drawTTL}
}

func (st *Store) Close() error {
	if st == nil || st.rdb == nil {
		return nil
	}
	return st.rdb.Close()
}

func sessionKey(id string) string { return "dc:session:" + strings.TrimSpace(id) }
func tokenKey(tok string) string  { return "dc:token:" + strings.TrimSpace(tok) }
func drawKey(id string, c engine.Color) string {
	return "dc:draw:" + strings.TrimSpace(id) + ":" + string(c)
}
func cacheKey(tok, kind string) string {
	return "dc:cache:" + strings.TrimSpace(tok) + ":" + kind
}

type tokenBinding struct {
	SessionID string       `json:"session_id"`
	Color     engine.Color `json:"color"`
}

// BindToken points a player token at its session and side.
func (st *Store) BindToken(ctx context.Context, token, sessionID string, color engine.Color) error {
	raw, err := json.Marshal(tokenBinding{SessionID: sessionID, Color: color})
	if err != nil {
		return err
	}
	return st.rdb.Set(ctx, tokenKey(token), raw, sessionTTL).Err()
}

// ResolveToken returns the session id and side a token binds to.
func (st *Store) ResolveToken(ctx context.Context, token string) (string, engine.Color, error) {
	raw, err := st.rdb.Get(ctx, tokenKey(token)).Bytes()
	if err == redis.Nil {
		return "", "", ErrUnknownToken
	}
	if err != nil {
		return "", "", err
	}
	var b tokenBinding
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", "", err
	}
	return b.SessionID, b.Color, nil
}

func (st *Store) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return st.rdb.Set(ctx, sessionKey(s.ID), raw, sessionTTL).Err()
}

func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := st.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrUnknownToken
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Update applies fn to the session under an optimistic WATCH
// transaction, retrying on concurrent writers. fn runs against a fresh
// copy each attempt and must be side-effect free until it returns nil.
func (st *Store) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := sessionKey(id)
	var out *Session
	for i := 0; i < updateAttempts; i++ {
		err := st.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrUnknownToken
			}
			if err != nil {
				return err
			}
			var cur Session
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if err := fn(&cur); err != nil {
				return err
			}
			newRaw, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, sessionTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = &cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("session update contention: %s", id)
}

// SetDrawOffer flags a pending draw offer from the given side. The flag
// expires on its own so stale offers cannot linger forever.
func (st *Store) SetDrawOffer(ctx context.Context, id string, color engine.Color) error {
	return st.rdb.Set(ctx, drawKey(id, color), "1", st.drawTTL).Err()
}

// DrawOffered reports whether the given side has a pending offer.
func (st *Store) DrawOffered(ctx context.Context, id string, color engine.Color) (bool, error) {
	err := st.rdb.Get(ctx, drawKey(id, color)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearDrawOffers removes pending offers from both sides.
func (st *Store) ClearDrawOffers(ctx context.Context, id string) error {
	return st.rdb.Del(ctx, drawKey(id, engine.White), drawKey(id, engine.Black)).Err()
}

// CacheResponse stores a rendered response body for a token.
func (st *Store) CacheResponse(ctx context.Context, token, kind string, body []byte) error {
	return st.rdb.Set(ctx, cacheKey(token, kind), body, st.cacheTTL).Err()
}

// CachedResponse returns the cached body, or nil on a miss.
func (st *Store) CachedResponse(ctx context.Context, token, kind string) ([]byte, error) {
	raw, err := st.rdb.Get(ctx, cacheKey(token, kind)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// InvalidateCache drops every cached response for the given tokens.
func (st *Store) InvalidateCache(ctx context.Context, tokens ...string) error {
	var keys []string
	for _, t := range tokens {
		if strings.TrimSpace(t) == "" {
			continue
		}
		for _, kind := range []string{"info", "moves", "board"} {
			keys = append(keys, cacheKey(t, kind))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return st.rdb.Del(ctx, keys...).Err()
}
