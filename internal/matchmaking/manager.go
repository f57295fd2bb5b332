package matchmaking

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/darkchess-server/internal/obslog"
	"github.com/park285/darkchess-server/internal/session"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

type mmErr string

func (e mmErr) Error() string { return string(e) }

const (
	// ErrUnknownTicket means the token names no waiting ticket.
	ErrUnknownTicket = mmErr("unknown matchmaking ticket")
	// ErrTicketGone means the pool entry or invite was claimed first.
	ErrTicketGone = mmErr("ticket no longer available")
)

const ticketTTL = 45 * 24 * time.Hour

// Ticket is one unpaired game request. Its token becomes the holder's
// game token the moment an opponent arrives.
type Ticket struct {
	Token   string           `json:"token"`
	User    string           `json:"user,omitempty"`
	Type    session.GameType `json:"type"`
	Period  string           `json:"period,omitempty"`
	Invite  string           `json:"invite,omitempty"`
	Pool    string           `json:"pool,omitempty"`
	Created time.Time        `json:"date_created"`
}

// Manager pairs players through three doors: a blind FIFO queue, a
// browsable pool, and single-use invites. Every path converges on
// session.Manager.StartGame with exactly-once claim semantics.
type Manager struct {
	rdb       *redis.Client
	sessions  *session.Manager
	poolLimit int
	now       func() time.Time
}

func NewManager(redisURL string, sm *session.Manager, poolLimit int) (*Manager, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for matchmaking")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewManagerFromClient(rdb, sm, poolLimit), nil
}

// NewManagerFromClient wraps an existing client, used by tests.
func NewManagerFromClient(rdb *redis.Client, sm *session.Manager, poolLimit int) *Manager {
	if poolLimit <= 0 {
		poolLimit = 10
	}
	return &Manager{rdb: rdb, sessions: sm, poolLimit: poolLimit, now: time.Now}
}

func (m *Manager) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

func ticketKey(token string) string { return "mm:ticket:" + strings.TrimSpace(token) }
func queueKey(gt session.GameType, period string) string {
	return "mm:queue:" + string(gt) + ":" + period
}
func poolEntryKey(id string) string { return "mm:pool:" + strings.TrimSpace(id) }
func inviteKey(tok string) string   { return "mm:invite:" + strings.TrimSpace(tok) }

const poolListKey = "mm:pool-list"

// Result of a matchmaking request. Session is nil while waiting.
type Result struct {
	Token   string
	Invite  string
	Session *session.Session
}

// Request runs the blind queue: claim the oldest compatible waiter or
// enqueue a fresh ticket. The exact (type, period) queue is drained
// before falling back to any queue of the same type; on a cross-period
// match the waiter's settings win, they were there first.
func (m *Manager) Request(ctx context.Context, user string, gt session.GameType, period string) (*Result, error) {
	if _, err := session.PeriodSeconds(gt, period); err != nil {
		return nil, err
	}
	for _, key := range m.candidateQueues(gt, period) {
		for {
			token, err := m.rdb.LPop(ctx, key).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return nil, err
			}
			waiter, ok, err := m.claimTicket(ctx, token)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue // dead entry, ticket was cancelled or claimed
			}
			return m.pair(ctx, waiter, user)
		}
	}

	t := &Ticket{
		Token:   uuid.NewString(),
		User:    strings.TrimSpace(user),
		Type:    gt,
		Period:  period,
		Created: m.now(),
	}
	if err := m.saveTicket(ctx, t); err != nil {
		return nil, err
	}
	if err := m.rdb.RPush(ctx, queueKey(gt, period), t.Token).Err(); err != nil {
		return nil, err
	}
	obslog.L().Info("mm_enqueue",
		zap.String("token", t.Token),
		zap.String("type", string(gt)),
		zap.String("period", period),
	)
	return &Result{Token: t.Token}, nil
}

// CreatePoolEntry publishes a browsable ticket others can accept.
func (m *Manager) CreatePoolEntry(ctx context.Context, user string, gt session.GameType, period string) (*Result, error) {
	if _, err := session.PeriodSeconds(gt, period); err != nil {
		return nil, err
	}
	t := &Ticket{
		Token:   uuid.NewString(),
		User:    strings.TrimSpace(user),
		Type:    gt,
		Period:  period,
		Pool:    uuid.NewString(),
		Created: m.now(),
	}
	if err := m.saveTicket(ctx, t); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	if err := m.rdb.Set(ctx, poolEntryKey(t.Pool), raw, ticketTTL).Err(); err != nil {
		return nil, err
	}
	if err := m.rdb.LPush(ctx, poolListKey, t.Pool).Err(); err != nil {
		return nil, err
	}
	return &Result{Token: t.Token}, nil
}

// ListPool returns the newest open entries, excluding the caller's own.
func (m *Manager) ListPool(ctx context.Context, excludeUser string) ([]chessdto.PoolEntry, error) {
	ids, err := m.rdb.LRange(ctx, poolListKey, 0, int64(m.poolLimit*3)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]chessdto.PoolEntry, 0, m.poolLimit)
	for _, id := range ids {
		if len(out) >= m.poolLimit {
			break
		}
		raw, err := m.rdb.Get(ctx, poolEntryKey(id)).Bytes()
		if err == redis.Nil {
			// claimed or cancelled, drop the dangling id
			_ = m.rdb.LRem(ctx, poolListKey, 0, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		var t Ticket
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		if excludeUser != "" && t.User == excludeUser {
			continue
		}
		sec, _ := session.PeriodSeconds(t.Type, t.Period)
		out = append(out, chessdto.PoolEntry{
			ID:      id,
			Created: t.Created.Format(time.RFC3339),
			User:    t.User,
			Type:    string(t.Type),
			Limit:   sec,
		})
	}
	return out, nil
}

// AcceptPool claims a pool entry by id. Exactly one acceptor wins.
func (m *Manager) AcceptPool(ctx context.Context, id, user string) (*Result, error) {
	raw, err := m.rdb.Get(ctx, poolEntryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrTicketGone
	}
	if err != nil {
		return nil, err
	}
	n, err := m.rdb.Del(ctx, poolEntryKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, ErrTicketGone
	}
	_ = m.rdb.LRem(ctx, poolListKey, 0, id).Err()
	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	waiter, ok, err := m.claimTicket(ctx, t.Token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTicketGone
	}
	return m.pair(ctx, waiter, user)
}

// CreateInvite makes a ticket reachable only through its invite token.
func (m *Manager) CreateInvite(ctx context.Context, user string, gt session.GameType, period string) (*Result, error) {
	if _, err := session.PeriodSeconds(gt, period); err != nil {
		return nil, err
	}
	t := &Ticket{
		Token:   uuid.NewString(),
		User:    strings.TrimSpace(user),
		Type:    gt,
		Period:  period,
		Invite:  uuid.NewString(),
		Created: m.now(),
	}
	if err := m.saveTicket(ctx, t); err != nil {
		return nil, err
	}
	if err := m.rdb.Set(ctx, inviteKey(t.Invite), t.Token, ticketTTL).Err(); err != nil {
		return nil, err
	}
	return &Result{Token: t.Token, Invite: t.Invite}, nil
}

// AcceptInvite redeems a single-use invite token.
func (m *Manager) AcceptInvite(ctx context.Context, invite, user string) (*Result, error) {
	token, err := m.rdb.Get(ctx, inviteKey(invite)).Result()
	if err == redis.Nil {
		return nil, ErrTicketGone
	}
	if err != nil {
		return nil, err
	}
	n, err := m.rdb.Del(ctx, inviteKey(invite)).Result()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, ErrTicketGone
	}
	waiter, ok, err := m.claimTicket(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTicketGone
	}
	return m.pair(ctx, waiter, user)
}

// Waiting describes an unpaired ticket, or ErrUnknownTicket.
func (m *Manager) Waiting(ctx context.Context, token string) (*chessdto.WaitingInfo, error) {
	raw, err := m.rdb.Get(ctx, ticketKey(token)).Bytes()
	if err == redis.Nil {
		return nil, ErrUnknownTicket
	}
	if err != nil {
		return nil, err
	}
	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	sec, _ := session.PeriodSeconds(t.Type, t.Period)
	return &chessdto.WaitingInfo{Type: string(t.Type), Limit: sec, Invite: t.Invite}, nil
}

// Cancel withdraws an unpaired ticket. Queue and pool references decay
// on their own once the ticket is gone.
func (m *Manager) Cancel(ctx context.Context, token string) error {
	waiter, ok, err := m.claimTicket(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownTicket
	}
	if waiter.Pool != "" {
		_ = m.rdb.Del(ctx, poolEntryKey(waiter.Pool)).Err()
		_ = m.rdb.LRem(ctx, poolListKey, 0, waiter.Pool).Err()
	}
	if waiter.Invite != "" {
		_ = m.rdb.Del(ctx, inviteKey(waiter.Invite)).Err()
	}
	return nil
}

func (m *Manager) saveTicket(ctx context.Context, t *Ticket) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, ticketKey(t.Token), raw, ticketTTL).Err()
}

// claimTicket implements the exactly-once handover: whoever gets the
// single successful DEL owns the ticket.
func (m *Manager) claimTicket(ctx context.Context, token string) (*Ticket, bool, error) {
	raw, err := m.rdb.Get(ctx, ticketKey(token)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	n, err := m.rdb.Del(ctx, ticketKey(token)).Result()
	if err != nil {
		return nil, false, err
	}
	if n != 1 {
		return nil, false, nil
	}
	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

func (m *Manager) candidateQueues(gt session.GameType, period string) []string {
	keys := []string{queueKey(gt, period)}
	for _, p := range session.PeriodNames(gt) {
		if p != period {
			keys = append(keys, queueKey(gt, p))
		}
	}
	return keys
}

// pair assigns colors at random and opens the session. The waiter's
// ticket token becomes their game token.
func (m *Manager) pair(ctx context.Context, waiter *Ticket, user string) (*Result, error) {
	requester := session.StartPlayer{Token: uuid.NewString(), User: strings.TrimSpace(user)}
	waiting := session.StartPlayer{Token: waiter.Token, User: waiter.User}

	white, black := waiting, requester
	if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 1 {
		white, black = requester, waiting
	}
	s, err := m.sessions.StartGame(ctx, white, black, waiter.Type, waiter.Period)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("mm_paired",
		zap.String("session_id", s.ID),
		zap.String("type", string(waiter.Type)),
		zap.String("period", waiter.Period),
	)
	return &Result{Token: requester.Token, Session: s}, nil
}
