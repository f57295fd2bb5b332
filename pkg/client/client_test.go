package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/darkchess-server/internal/httpapi"
	"github.com/park285/darkchess-server/internal/matchmaking"
	"github.com/park285/darkchess-server/internal/msgcat"
	"github.com/park285/darkchess-server/internal/session"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

// newTestAPI runs the real API over an in-memory listener and returns a
// client factory bound to it.
func newTestAPI(t *testing.T) func(user string) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := session.NewStoreFromClient(rdb, time.Minute, time.Minute)
	sm := session.NewManager(store)
	mm := matchmaking.NewManagerFromClient(rdb, sm, 10)
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	srv := httpapi.NewServer(sm, mm, cat)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, srv.Handler()) }()
	t.Cleanup(func() { _ = ln.Close() })

	return func(user string) *Client {
		return New("http://darkchess",
			WithUser(user),
			WithRetry(1),
			WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		)
	}
}

// pairedGame queues two players and returns their clients and tokens,
// white first.
func pairedGame(t *testing.T, mk func(string) *Client) (*Client, string, *Client, string) {
	t.Helper()
	ctx := context.Background()
	alice := mk("alice")
	bob := mk("bob")

	first, err := alice.NewGame(ctx, "no limit", "")
	if err != nil {
		t.Fatalf("alice NewGame: %v", err)
	}
	if first.Info != nil {
		t.Fatalf("first request must wait, got started game")
	}
	second, err := bob.NewGame(ctx, "no limit", "")
	if err != nil {
		t.Fatalf("bob NewGame: %v", err)
	}
	if second.Info == nil {
		t.Fatalf("second request must pair immediately")
	}

	if second.Info.Color == "white" {
		return bob, second.Game, alice, first.Game
	}
	return alice, first.Game, bob, second.Game
}

func TestBlindQueuePairingOverHTTP(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	white, wtok, black, btok := pairedGame(t, mk)

	res, err := white.Move(ctx, wtok, "e2-e4")
	if err != nil {
		t.Fatalf("white move: %v", err)
	}
	if res.Move != "e2-e4" {
		t.Fatalf("unexpected move echo %q", res.Move)
	}
	if res.Info.NextTurn != "black" {
		t.Fatalf("next turn = %q, want black", res.Info.NextTurn)
	}

	state, err := black.State(ctx, btok)
	if err != nil {
		t.Fatalf("black state: %v", err)
	}
	if state.Info == nil || state.Info.Color != "black" {
		t.Fatalf("black state wrong: %+v", state)
	}

	wm, err := white.Moves(ctx, wtok)
	if err != nil {
		t.Fatalf("white moves: %v", err)
	}
	if len(wm) != 1 {
		t.Fatalf("white must see its own move, got %d", len(wm))
	}
	bm, err := black.Moves(ctx, btok)
	if err != nil {
		t.Fatalf("black moves: %v", err)
	}
	if len(bm) != 0 {
		t.Fatalf("black must not see white's moves yet, got %d", len(bm))
	}
}

func TestGameTypesListing(t *testing.T) {
	mk := newTestAPI(t)
	types, err := mk("alice").GameTypes(context.Background())
	if err != nil {
		t.Fatalf("GameTypes: %v", err)
	}
	if len(types) != 3 {
		t.Fatalf("want 3 types, got %d", len(types))
	}
	if types[2].Type != "fast" || len(types[2].Limits) != 5 {
		t.Fatalf("fast type wrong: %+v", types[2])
	}
}

func TestWaitingStateAndCancel(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	alice := mk("alice")

	resp, err := alice.NewGame(ctx, "fast", "5m")
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	state, err := alice.State(ctx, resp.Game)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Waiting == nil || state.Waiting.Type != "fast" {
		t.Fatalf("waiting state wrong: %+v", state)
	}
	if err := alice.Cancel(ctx, resp.Game); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := alice.State(ctx, resp.Game); err == nil {
		t.Fatalf("cancelled token must be gone")
	}
}

func TestDomainErrorSurfaced(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	white, wtok, _, _ := pairedGame(t, mk)

	_, err := white.Move(ctx, wtok, "e2e4")
	if err == nil {
		t.Fatalf("malformed move must fail")
	}
	var derr chessdto.DomainError
	if !errors.As(err, &derr) {
		t.Fatalf("want DomainError, got %T: %v", err, err)
	}
	if derr.Code != "errors.bad_move_format" {
		t.Fatalf("code = %q", derr.Code)
	}

	_, err = white.Move(ctx, wtok, "e7-e5")
	if !errors.As(err, &derr) {
		t.Fatalf("moving the opponent's pawn must fail with a domain error, got %v", err)
	}
}

func TestInviteFlowOverHTTP(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	alice := mk("alice")
	bob := mk("bob")

	created, err := alice.CreateInvite(ctx, "slow", "3d")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if created.Invite == "" {
		t.Fatalf("invite code missing")
	}
	accepted, err := bob.AcceptInvite(ctx, created.Invite)
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if accepted.Info == nil {
		t.Fatalf("accept must start the game")
	}
	if _, err := bob.AcceptInvite(ctx, created.Invite); err == nil {
		t.Fatalf("invite must be single use")
	}
}

func TestPoolFlowOverHTTP(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	alice := mk("alice")
	bob := mk("bob")

	if _, err := alice.CreatePoolEntry(ctx, "no limit", ""); err != nil {
		t.Fatalf("CreatePoolEntry: %v", err)
	}
	entries, err := bob.ListPool(ctx)
	if err != nil {
		t.Fatalf("ListPool: %v", err)
	}
	if len(entries) != 1 || entries[0].User != "alice" {
		t.Fatalf("pool listing wrong: %+v", entries)
	}
	accepted, err := bob.AcceptPool(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("AcceptPool: %v", err)
	}
	if accepted.Info == nil {
		t.Fatalf("pool accept must start the game")
	}
}

func TestDrawAndResignOverHTTP(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	white, wtok, black, btok := pairedGame(t, mk)

	if err := white.OfferDraw(ctx, wtok); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	state, err := black.State(ctx, btok)
	if err != nil {
		t.Fatalf("black state: %v", err)
	}
	if state.Info == nil || !state.Info.DrawRequest {
		t.Fatalf("black must see the pending draw offer")
	}
	if err := black.RefuseDraw(ctx, btok); err != nil {
		t.Fatalf("RefuseDraw: %v", err)
	}

	ended, err := black.Resign(ctx, btok)
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if ended.Info == nil || ended.Info.EndedAt == nil {
		t.Fatalf("resigned game must be over")
	}
	if ended.Info.Winner != "white" {
		t.Fatalf("winner = %q, want white", ended.Info.Winner)
	}
}

func TestBoardPNGOverHTTP(t *testing.T) {
	mk := newTestAPI(t)
	ctx := context.Background()
	white, wtok, _, _ := pairedGame(t, mk)

	raw, err := white.BoardPNG(ctx, wtok)
	if err != nil {
		t.Fatalf("BoardPNG: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatalf("payload is not a PNG")
	}
}
