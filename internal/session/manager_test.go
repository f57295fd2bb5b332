package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/darkchess-server/internal/engine"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

type capturePub struct {
	mu     sync.Mutex
	events []chessdto.Event
}

func (p *capturePub) Publish(_ context.Context, ev chessdto.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePub) bySignal(sig chessdto.Signal) []chessdto.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []chessdto.Event
	for _, ev := range p.events {
		if ev.Signal == sig {
			out = append(out, ev)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *capturePub, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	m := NewManager(NewStoreFromClient(rdb, time.Minute, time.Hour))
	pub := &capturePub{}
	m.AttachPublisher(pub)
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return m, pub, clock
}

func startGame(t *testing.T, m *Manager, gt GameType, period string) *Session {
	t.Helper()
	s, err := m.StartGame(context.Background(),
		StartPlayer{Token: "tok-white", User: "alice"},
		StartPlayer{Token: "tok-black", User: "bob"},
		gt, period)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return s
}

func TestStartGameBindsBothTokens(t *testing.T) {
	m, pub, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	s, color, err := m.Load(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Load white: %v", err)
	}
	if color != engine.White {
		t.Fatalf("white token bound to %s", color)
	}
	if s.NextTurn != engine.White {
		t.Fatalf("white must open, got %s", s.NextTurn)
	}
	if _, color, err = m.Load(ctx, "tok-black"); err != nil || color != engine.Black {
		t.Fatalf("Load black: %v %s", err, color)
	}
	if _, _, err = m.Load(ctx, "tok-nobody"); err != ErrUnknownToken {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if got := len(pub.bySignal(chessdto.SignalStart)); got != 2 {
		t.Fatalf("expected 2 start events, got %d", got)
	}
}

func TestInfoHidesFoggedSquares(t *testing.T) {
	m, _, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	info, err := m.Info(context.Background(), "tok-white")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Color != "white" || info.Opponent != "bob" {
		t.Fatalf("info identity wrong: %+v", info)
	}
	if info.TimeLeft != nil {
		t.Fatalf("no-limit game must not carry a clock")
	}
	cells := info.Board.Cells
	if cells["e2"] == nil || cells["e2"].Kind != "pawn" {
		t.Fatalf("own pawn missing from view: %v", cells["e2"])
	}
	if len(cells["e2"].Moves) != 2 {
		t.Fatalf("own figure must list its moves: %v", cells["e2"].Moves)
	}
	if _, ok := cells["e7"]; ok {
		t.Fatalf("enemy camp must be fogged at the start")
	}
	if _, ok := cells["e3"]; !ok {
		t.Fatalf("threatened empty square must be visible")
	}
}

func TestMovePublishesToOpponentOnly(t *testing.T) {
	m, pub, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	_, rec, err := m.Move(ctx, "tok-white", "e2-e4")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if rec.Move != "e2-e4" || rec.Figure != "P" {
		t.Fatalf("move record wrong: %+v", rec)
	}
	moves := pub.bySignal(chessdto.SignalMove)
	if len(moves) != 1 {
		t.Fatalf("expected 1 move event, got %d", len(moves))
	}
	if len(moves[0].Tags) != 1 || moves[0].Tags[0] != "tok-black" {
		t.Fatalf("move event must target the opponent: %v", moves[0].Tags)
	}

	if _, _, err := m.Move(ctx, "tok-white", "d2-d4"); err != engine.ErrWrongTurn {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
	if _, _, err := m.Move(ctx, "tok-black", "e7e5"); err != engine.ErrWrongMove {
		t.Fatalf("malformed move string must fail, got %v", err)
	}
	if _, _, err := m.Move(ctx, "tok-black", "e7-e5"); err != nil {
		t.Fatalf("black reply: %v", err)
	}
}

func TestFastClockSpendsFromBank(t *testing.T) {
	m, _, clock := newTestManager(t)
	startGame(t, m, TypeFast, "5m")
	ctx := context.Background()

	clock.Advance(20 * time.Second)
	if _, _, err := m.Move(ctx, "tok-white", "e2-e4"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	clock.Advance(5 * time.Second)
	if _, _, err := m.Move(ctx, "tok-black", "e7-e5"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	clock.Advance(14 * time.Second)
	if _, _, err := m.Move(ctx, "tok-white", "d2-d4"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	info, err := m.Info(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.TimeLeft == nil || *info.TimeLeft != 300-20-14 {
		t.Fatalf("white bank wrong: %v", info.TimeLeft)
	}
	// black is on the move, their live elapsed counts against them
	if info.EnemyTimeLeft == nil || *info.EnemyTimeLeft != 300-5 {
		t.Fatalf("black bank wrong: %v", info.EnemyTimeLeft)
	}
}

func TestClockExhaustionLosesOnLoad(t *testing.T) {
	m, pub, clock := newTestManager(t)
	startGame(t, m, TypeFast, "5m")
	ctx := context.Background()

	clock.Advance(301 * time.Second)
	s, _, err := m.Load(ctx, "tok-black")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Ended() || s.Winner != engine.Black || s.Reason != engine.ReasonTime {
		t.Fatalf("expected black win on time, got %+v", s)
	}
	if len(pub.bySignal(chessdto.SignalWin)) != 1 || len(pub.bySignal(chessdto.SignalLose)) != 1 {
		t.Fatalf("win/lose events missing")
	}
	if _, _, err := m.Move(ctx, "tok-white", "e2-e4"); err != ErrGameOver {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
}

func TestSlowClockResetsPerMove(t *testing.T) {
	m, _, clock := newTestManager(t)
	startGame(t, m, TypeSlow, "1d")
	ctx := context.Background()

	clock.Advance(20 * time.Hour)
	if _, _, err := m.Move(ctx, "tok-white", "e2-e4"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	info, err := m.Info(ctx, "tok-black")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	// black's allowance starts fresh from white's move
	if info.TimeLeft == nil || *info.TimeLeft != 24*3600 {
		t.Fatalf("black allowance wrong: %v", info.TimeLeft)
	}
}

func TestDrawProtocol(t *testing.T) {
	m, pub, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	if _, err := m.AcceptDraw(ctx, "tok-black"); err != ErrNoDrawOffer {
		t.Fatalf("expected ErrNoDrawOffer, got %v", err)
	}
	if err := m.OfferDraw(ctx, "tok-white"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	reqs := pub.bySignal(chessdto.SignalDrawRequest)
	if len(reqs) != 1 || reqs[0].Tags[0] != "tok-black" {
		t.Fatalf("draw request must reach the opponent: %v", reqs)
	}
	pending, err := m.DrawOfferPending(ctx, "tok-black")
	if err != nil || !pending {
		t.Fatalf("offer not pending for black: %v %v", pending, err)
	}
	// the offering side cannot accept its own offer
	if _, err := m.AcceptDraw(ctx, "tok-white"); err != ErrNoDrawOffer {
		t.Fatalf("expected ErrNoDrawOffer for offerer, got %v", err)
	}
	s, err := m.AcceptDraw(ctx, "tok-black")
	if err != nil {
		t.Fatalf("AcceptDraw: %v", err)
	}
	if !s.Ended() || s.Winner != "" || s.Reason != engine.ReasonDraw {
		t.Fatalf("expected draw, got %+v", s)
	}
	if len(pub.bySignal(chessdto.SignalDraw)) != 1 {
		t.Fatalf("draw event missing")
	}
}

func TestMutualOffersFinalizeDraw(t *testing.T) {
	m, pub, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	if err := m.OfferDraw(ctx, "tok-white"); err != nil {
		t.Fatalf("white OfferDraw: %v", err)
	}
	if err := m.OfferDraw(ctx, "tok-black"); err != nil {
		t.Fatalf("black OfferDraw: %v", err)
	}
	s, _, err := m.Load(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Ended() || s.Winner != "" || s.Reason != engine.ReasonDraw {
		t.Fatalf("two standing offers must draw, got %+v", s)
	}
	if len(pub.bySignal(chessdto.SignalDraw)) != 1 {
		t.Fatalf("draw event missing")
	}
}

func TestRacedDrawOffersSettleOnLoad(t *testing.T) {
	m, pub, _ := newTestManager(t)
	s0 := startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	// both flags standing with nobody having finalized, the state two
	// interleaved offers can leave behind
	if err := m.Store().SetDrawOffer(ctx, s0.ID, engine.White); err != nil {
		t.Fatalf("SetDrawOffer white: %v", err)
	}
	if err := m.Store().SetDrawOffer(ctx, s0.ID, engine.Black); err != nil {
		t.Fatalf("SetDrawOffer black: %v", err)
	}
	s, _, err := m.Load(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Ended() || s.Winner != "" || s.Reason != engine.ReasonDraw {
		t.Fatalf("standing mutual offers must settle as a draw, got %+v", s)
	}
	if len(pub.bySignal(chessdto.SignalDraw)) != 1 {
		t.Fatalf("draw event missing")
	}
}

func TestRefuseDrawClearsOffer(t *testing.T) {
	m, _, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	if err := m.OfferDraw(ctx, "tok-white"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if err := m.RefuseDraw(ctx, "tok-black"); err != nil {
		t.Fatalf("RefuseDraw: %v", err)
	}
	if _, err := m.AcceptDraw(ctx, "tok-black"); err != ErrNoDrawOffer {
		t.Fatalf("refusal must clear the offer, got %v", err)
	}
	s, _, err := m.Load(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Ended() {
		t.Fatalf("refused game must continue, got %+v", s)
	}
}

func TestResign(t *testing.T) {
	m, pub, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	s, err := m.Resign(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if !s.Ended() || s.Winner != engine.Black || s.Reason != engine.ReasonResign {
		t.Fatalf("expected black win by resignation, got %+v", s)
	}
	wins := pub.bySignal(chessdto.SignalWin)
	if len(wins) != 1 || wins[0].Tags[0] != "tok-black" {
		t.Fatalf("win event must reach black: %v", wins)
	}
	if _, err := m.Resign(ctx, "tok-black"); err != ErrGameOver {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
}

func TestMovesListFogUntilEnded(t *testing.T) {
	m, _, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	if _, _, err := m.Move(ctx, "tok-white", "e2-e4"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, _, err := m.Move(ctx, "tok-black", "e7-e5"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	list, err := m.MovesList(ctx, "tok-white")
	if err != nil {
		t.Fatalf("MovesList: %v", err)
	}
	if len(list) != 1 || list[0].Move != "e2-e4" {
		t.Fatalf("white must see only own moves while running: %+v", list)
	}
	if _, err := m.Resign(ctx, "tok-white"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	list, err = m.MovesList(ctx, "tok-white")
	if err != nil {
		t.Fatalf("MovesList: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("full history must open after the end: %+v", list)
	}
}

func TestCastlingRightsSurviveReload(t *testing.T) {
	m, _, _ := newTestManager(t)
	startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	script := []struct {
		token, move string
	}{
		{"tok-white", "g1-f3"},
		{"tok-black", "g8-f6"},
		{"tok-white", "g2-g3"},
		{"tok-black", "g7-g6"},
		{"tok-white", "f1-g2"},
		{"tok-black", "f8-g7"},
	}
	for _, mv := range script {
		if _, _, err := m.Move(ctx, mv.token, mv.move); err != nil {
			t.Fatalf("Move %s: %v", mv.move, err)
		}
	}
	// every reload rebuilds the board from scratch; the derived rights
	// must still allow the short castle
	_, rec, err := m.Move(ctx, "tok-white", "e1-g1")
	if err != nil {
		t.Fatalf("castle: %v", err)
	}
	if rec.Move != "0-0" {
		t.Fatalf("expected castle notation, got %q", rec.Move)
	}
	// and forbid it once the king has moved
	if _, _, err := m.Move(ctx, "tok-black", "e8-g8"); err != nil {
		t.Fatalf("black castle: %v", err)
	}
	s, _, err := m.Load(ctx, "tok-white")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g, err := s.Game()
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if g.Board.CanCastle(engine.White, true) != nil {
		t.Fatalf("short castle must be spent")
	}
}

func TestKingCaptureFinishesSession(t *testing.T) {
	m, pub, _ := newTestManager(t)
	s := startGame(t, m, TypeNoLimit, "")
	ctx := context.Background()

	// rig an almost-over position directly in the store
	s.Board = "Re4,ke8,Ke1"
	s.NextTurn = engine.White
	if err := m.store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, err := m.Move(ctx, "tok-white", "e4-e8")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !got.Ended() || got.Winner != engine.White || got.Reason != engine.ReasonCheckmate {
		t.Fatalf("expected white win by king capture, got %+v", got)
	}
	if len(pub.bySignal(chessdto.SignalWin)) != 1 {
		t.Fatalf("win event missing")
	}
	// the board stays as it was before the final move
	if got.Board != "Re4,ke8,Ke1" {
		t.Fatalf("final board must not mutate: %s", got.Board)
	}
}
