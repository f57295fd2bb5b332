package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/darkchess-server/internal/session"
)

func newTestManager(t *testing.T) (*Manager, *session.Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sm := session.NewManager(session.NewStoreFromClient(rdb, time.Minute, time.Hour))
	return NewManagerFromClient(rdb, sm, 10), sm
}

func TestBlindQueuePairsFIFO(t *testing.T) {
	m, sm := newTestManager(t)
	ctx := context.Background()

	first, err := m.Request(ctx, "alice", session.TypeFast, "5m")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if first.Session != nil {
		t.Fatalf("first request cannot pair")
	}
	if w, err := m.Waiting(ctx, first.Token); err != nil || w.Type != "fast" {
		t.Fatalf("Waiting: %v %+v", err, w)
	}

	second, err := m.Request(ctx, "bob", session.TypeFast, "5m")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if second.Session == nil {
		t.Fatalf("second request must pair")
	}
	if _, err := m.Waiting(ctx, first.Token); err != ErrUnknownTicket {
		t.Fatalf("ticket must be consumed, got %v", err)
	}
	// both tokens now open the same session
	s1, _, err := sm.Load(ctx, first.Token)
	if err != nil {
		t.Fatalf("Load waiter: %v", err)
	}
	s2, _, err := sm.Load(ctx, second.Token)
	if err != nil {
		t.Fatalf("Load requester: %v", err)
	}
	if s1.ID != s2.ID || s1.ID != second.Session.ID {
		t.Fatalf("tokens bound to different sessions")
	}
}

func TestBlindQueueCrossPeriodFallback(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Request(ctx, "alice", session.TypeFast, "5m"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	res, err := m.Request(ctx, "bob", session.TypeFast, "1h")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.Session == nil {
		t.Fatalf("same-type waiter must pair across periods")
	}
	// the earlier ticket's settings win
	if res.Session.PeriodName != "5m" {
		t.Fatalf("expected waiter's period, got %s", res.Session.PeriodName)
	}
}

func TestBlindQueueTypeIsolation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Request(ctx, "alice", session.TypeSlow, "1d"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	res, err := m.Request(ctx, "bob", session.TypeFast, "5m")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.Session != nil {
		t.Fatalf("slow and fast queues must not mix")
	}
}

func TestRequestRejectsBadPeriod(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Request(context.Background(), "alice", session.TypeFast, "2d"); err != session.ErrBadPeriod {
		t.Fatalf("expected ErrBadPeriod, got %v", err)
	}
	if _, err := m.Request(context.Background(), "alice", session.TypeNoLimit, "5m"); err != session.ErrBadPeriod {
		t.Fatalf("no-limit takes no period, got %v", err)
	}
}

func TestPoolListAndAccept(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreatePoolEntry(ctx, "alice", session.TypeNoLimit, ""); err != nil {
		t.Fatalf("CreatePoolEntry: %v", err)
	}
	if _, err := m.CreatePoolEntry(ctx, "carol", session.TypeFast, "10m"); err != nil {
		t.Fatalf("CreatePoolEntry: %v", err)
	}

	entries, err := m.ListPool(ctx, "alice")
	if err != nil {
		t.Fatalf("ListPool: %v", err)
	}
	if len(entries) != 1 || entries[0].User != "carol" {
		t.Fatalf("own entries must be excluded: %+v", entries)
	}
	if entries[0].Limit != 600 {
		t.Fatalf("period seconds wrong: %d", entries[0].Limit)
	}

	all, err := m.ListPool(ctx, "")
	if err != nil {
		t.Fatalf("ListPool: %v", err)
	}
	if len(all) != 2 || all[0].User != "carol" {
		t.Fatalf("newest entry must come first: %+v", all)
	}

	res, err := m.AcceptPool(ctx, all[0].ID, "bob")
	if err != nil {
		t.Fatalf("AcceptPool: %v", err)
	}
	if res.Session == nil {
		t.Fatalf("accept must open a session")
	}
	if _, err := m.AcceptPool(ctx, all[0].ID, "dave"); err != ErrTicketGone {
		t.Fatalf("second accept must lose, got %v", err)
	}
	left, err := m.ListPool(ctx, "")
	if err != nil {
		t.Fatalf("ListPool: %v", err)
	}
	if len(left) != 1 || left[0].User != "alice" {
		t.Fatalf("claimed entry must disappear: %+v", left)
	}
}

func TestPoolAcceptExactlyOnce(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreatePoolEntry(ctx, "alice", session.TypeNoLimit, ""); err != nil {
		t.Fatalf("CreatePoolEntry: %v", err)
	}
	entries, err := m.ListPool(ctx, "")
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListPool: %v %+v", err, entries)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.AcceptPool(ctx, entries[0].ID, "racer"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestInviteSingleUse(t *testing.T) {
	m, sm := newTestManager(t)
	ctx := context.Background()

	res, err := m.CreateInvite(ctx, "alice", session.TypeSlow, "3d")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if res.Invite == "" {
		t.Fatalf("invite token missing")
	}
	if w, err := m.Waiting(ctx, res.Token); err != nil || w.Invite != res.Invite {
		t.Fatalf("waiting info must expose the invite: %v %+v", err, w)
	}

	accepted, err := m.AcceptInvite(ctx, res.Invite, "bob")
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if accepted.Session == nil || accepted.Session.Type != session.TypeSlow {
		t.Fatalf("invite must open the creator's game: %+v", accepted.Session)
	}
	if _, err := m.AcceptInvite(ctx, res.Invite, "carol"); err != ErrTicketGone {
		t.Fatalf("invite must be single-use, got %v", err)
	}
	if _, _, err := sm.Load(ctx, res.Token); err != nil {
		t.Fatalf("creator token must open the session: %v", err)
	}
}

func TestCancelWithdrawsTicket(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Request(ctx, "alice", session.TypeFast, "5m")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := m.Cancel(ctx, res.Token); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := m.Waiting(ctx, res.Token); err != ErrUnknownTicket {
		t.Fatalf("expected ErrUnknownTicket, got %v", err)
	}
	// a later request must skip the dead queue entry and wait itself
	next, err := m.Request(ctx, "bob", session.TypeFast, "5m")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if next.Session != nil {
		t.Fatalf("cancelled ticket must not pair")
	}
	if err := m.Cancel(ctx, "no-such-token"); err != ErrUnknownTicket {
		t.Fatalf("expected ErrUnknownTicket, got %v", err)
	}
}
