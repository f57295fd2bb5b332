package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/darkchess-server/internal/engine"
	"github.com/park285/darkchess-server/internal/obslog"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

// Publisher pushes game events towards connected clients.
type Publisher interface {
	Publish(ctx context.Context, ev chessdto.Event) error
}

// Archiver persists final game results to durable storage.
type Archiver interface {
	SaveResult(ctx context.Context, s *Session) error
}

// Manager owns the session lifecycle: creation, move application,
// draw protocol, resignation and lazy clock enforcement. All state
// lives in the Store; the manager itself is stateless.
type Manager struct {
	store *Store
	pub   Publisher
	arch  Archiver
	now   func() time.Time
}

func NewManager(store *Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

func (m *Manager) AttachPublisher(p Publisher) { m.pub = p }
func (m *Manager) AttachArchiver(a Archiver) { m.arch = a }

// Store exposes the underlying store for response caching.
func (m *Manager) Store() *Store { return m.store }

// StartPlayer describes one side of a new game.
type StartPlayer struct {
	Token string
	User  string
}

// StartGame creates a session for an already-paired couple of players.
// White always opens. Both tokens are bound and a start event goes out
// to each player.
func (m *Manager) StartGame(ctx context.Context, white, black StartPlayer, gt GameType, periodName string) (*Session, error) {
	periodSec, err := PeriodSeconds(gt, periodName)
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &Session{
		ID:         uuid.NewString(),
		Type:       gt,
		PeriodName: periodName,
		PeriodSec:  periodSec,
		Board:      engine.NewBoard().String(),
		NextTurn:   engine.White,
		Players: map[engine.Color]PlayerSlot{
			engine.White: {Token: white.Token, User: white.User},
			engine.Black: {Token: black.Token, User: black.User},
		},
		StartedAt: now,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	if err := m.store.BindToken(ctx, white.Token, s.ID, engine.White); err != nil {
		return nil, err
	}
	if err := m.store.BindToken(ctx, black.Token, s.ID, engine.Black); err != nil {
		return nil, err
	}
	obslog.L().Info("session_start",
		zap.String("session_id", s.ID),
		zap.String("type", string(gt)),
		zap.String("period", periodName),
	)
	for c, p := range s.Players {
		m.publish(ctx, chessdto.SignalStart, map[string]string{
			"color":    string(c),
			"opponent": s.Players[c.Invert()].User,
		}, p.Token)
	}
	return s, nil
}

// Load resolves a token to its session and side, enforcing the clock:
// an exhausted side to move loses on time the moment anybody looks.
// Mutual draw flags left behind by racing offers settle here too.
func (m *Manager) Load(ctx context.Context, token string) (*Session, engine.Color, error) {
	id, color, err := m.store.ResolveToken(ctx, token)
	if err != nil {
		return nil, "", err
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if s.TimedOut(m.now()) {
		s, err = m.endSession(ctx, id, s.NextTurn.Invert(), engine.ReasonTime)
		if err != nil {
			return nil, "", err
		}
	}
	if !s.Ended() {
		mutual, err := m.mutualDrawOffer(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if mutual {
			s, err = m.endSession(ctx, id, "", engine.ReasonDraw)
			if err != nil {
				return nil, "", err
			}
		}
	}
	return s, color, nil
}

func (m *Manager) mutualDrawOffer(ctx context.Context, id string) (bool, error) {
	white, err := m.store.DrawOffered(ctx, id, engine.White)
	if err != nil || !white {
		return false, err
	}
	return m.store.DrawOffered(ctx, id, engine.Black)
}

// Move applies "<from>-<to>" for the token's side. Castling is entered
// as the king's two-square move. The game may end here by king capture,
// stalemate or the mover's clock.
func (m *Manager) Move(ctx context.Context, token, move string) (*Session, *MoveRecord, error) {
	from, to, err := parseMove(move)
	if err != nil {
		return nil, nil, err
	}
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if s.Ended() {
		return s, nil, ErrGameOver
	}

	var rec MoveRecord
	var over *engine.GameOver
	now := m.now()
	s, err = m.store.Update(ctx, s.ID, func(cur *Session) error {
		if cur.Ended() {
			return ErrGameOver
		}
		if cur.TimedOut(now) {
			cur.endNow(now, cur.NextTurn.Invert(), engine.ReasonTime)
			over = &engine.GameOver{Winner: cur.Winner, Reason: engine.ReasonTime}
			return nil
		}
		g, err := cur.Game()
		if err != nil {
			return err
		}
		res, err := g.ApplyMove(color, from, to)
		if err != nil {
			return err
		}
		rec = MoveRecord{
			Figure:  res.Figure.Symbol(),
			Move:    res.Notation,
			Color:   color,
			Seconds: now.Sub(cur.lastActivity()).Seconds(),
			Played:  now,
		}
		cur.Moves = append(cur.Moves, rec)
		cur.Board = g.Board.String()
		cur.NextTurn = g.Current
		cur.LastMoveAt = now
		over = res.Over
		if over != nil {
			cur.endNow(now, over.Winner, over.Reason)
		}
		return nil
	})
	if err != nil {
		return s, nil, err
	}

	m.invalidate(ctx, s)
	if over != nil && over.Reason == engine.ReasonTime {
		m.finish(ctx, s)
		return s, nil, ErrGameOver
	}
	obslog.L().Info("session_move",
		zap.String("session_id", s.ID),
		zap.String("color", string(color)),
		zap.String("move", rec.Move),
	)
	m.publish(ctx, chessdto.SignalMove, map[string]string{"move": rec.Move}, s.TokenOf(color.Invert()))
	if over != nil {
		m.finish(ctx, s)
	}
	return s, &rec, nil
}

// OfferDraw flags a draw offer and notifies the opponent. Two standing
// offers are a mutual draw; the own flag goes up before the opponent's
// is read, so of two racing offers at least one sees the other and
// finalizes the game.
func (m *Manager) OfferDraw(ctx context.Context, token string) error {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return err
	}
	if s.Ended() {
		return ErrGameOver
	}
	if err := m.store.SetDrawOffer(ctx, s.ID, color); err != nil {
		return err
	}
	offered, err := m.store.DrawOffered(ctx, s.ID, color.Invert())
	if err != nil {
		return err
	}
	if offered {
		_, err = m.endSession(ctx, s.ID, "", engine.ReasonDraw)
		return err
	}
	m.invalidate(ctx, s)
	m.publish(ctx, chessdto.SignalDrawRequest, nil, s.TokenOf(color.Invert()))
	return nil
}

// AcceptDraw ends the game as a draw, but only while the opponent's
// offer is still pending.
func (m *Manager) AcceptDraw(ctx context.Context, token string) (*Session, error) {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Ended() {
		return nil, ErrGameOver
	}
	offered, err := m.store.DrawOffered(ctx, s.ID, color.Invert())
	if err != nil {
		return nil, err
	}
	if !offered {
		return nil, ErrNoDrawOffer
	}
	s, err = m.endSession(ctx, s.ID, "", engine.ReasonDraw)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RefuseDraw drops pending offers from both sides.
func (m *Manager) RefuseDraw(ctx context.Context, token string) error {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return err
	}
	if err := m.store.ClearDrawOffers(ctx, s.ID); err != nil {
		return err
	}
	m.invalidate(ctx, s)
	m.publish(ctx, chessdto.SignalChat, map[string]string{"text": "draw offer declined"}, s.TokenOf(color.Invert()))
	return nil
}

// DrawOfferPending reports whether the opponent has an open offer the
// token holder could accept.
func (m *Manager) DrawOfferPending(ctx context.Context, token string) (bool, error) {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return false, err
	}
	if s.Ended() {
		return false, nil
	}
	return m.store.DrawOffered(ctx, s.ID, color.Invert())
}

// Resign ends the game in the opponent's favor.
func (m *Manager) Resign(ctx context.Context, token string) (*Session, error) {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Ended() {
		return nil, ErrGameOver
	}
	return m.endSession(ctx, s.ID, color.Invert(), engine.ReasonResign)
}

// Chat relays a text line to the opponent's event stream.
func (m *Manager) Chat(ctx context.Context, token, text string) error {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return err
	}
	m.publish(ctx, chessdto.SignalChat, map[string]string{
		"from": s.Players[color].User,
		"text": text,
	}, s.TokenOf(color.Invert()))
	return nil
}

// Info renders the session as seen by the token's side, fog included.
func (m *Manager) Info(ctx context.Context, token string) (*chessdto.SessionInfo, error) {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	info, err := buildInfo(s, color, m.now())
	if err != nil {
		return nil, err
	}
	if !s.Ended() {
		pending, err := m.store.DrawOffered(ctx, s.ID, color.Invert())
		if err != nil {
			return nil, err
		}
		info.DrawRequest = pending
	}
	return info, nil
}

// BoardFor returns the fog-filtered board view of the token's side,
// used by the PNG renderer.
func (m *Manager) BoardFor(ctx context.Context, token string) (*chessdto.BoardView, engine.Color, error) {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return nil, "", err
	}
	view, err := boardView(s, color)
	if err != nil {
		return nil, "", err
	}
	return view, color, nil
}

// MovesList returns the move history. While the game runs a player
// sees only their own moves; the full list opens up once it ends.
func (m *Manager) MovesList(ctx context.Context, token string) ([]chessdto.MoveView, error) {
	s, color, err := m.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	out := make([]chessdto.MoveView, 0, len(s.Moves))
	for i, rec := range s.Moves {
		if !s.Ended() && rec.Color != color {
			continue
		}
		out = append(out, chessdto.MoveView{
			Number:  i + 1,
			Figure:  rec.Figure,
			Move:    rec.Move,
			Color:   string(rec.Color),
			Seconds: rec.Seconds,
			Played:  rec.Played,
		})
	}
	return out, nil
}

// endNow mutates the session into its final state in place.
func (s *Session) endNow(now time.Time, winner engine.Color, reason engine.EndReason) {
	t := now
	s.EndedAt = &t
	s.Winner = winner
	s.Reason = reason
}

func (m *Manager) endSession(ctx context.Context, id string, winner engine.Color, reason engine.EndReason) (*Session, error) {
	now := m.now()
	s, err := m.store.Update(ctx, id, func(cur *Session) error {
		if cur.Ended() {
			return ErrGameOver
		}
		cur.endNow(now, winner, reason)
		return nil
	})
	if err == ErrGameOver {
		// lost the race to another finisher, current state is final
		return m.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, s)
	m.finish(ctx, s)
	return s, nil
}

// finish publishes the outcome and archives the result, best effort.
func (m *Manager) finish(ctx context.Context, s *Session) {
	obslog.L().Info("session_end",
		zap.String("session_id", s.ID),
		zap.String("winner", string(s.Winner)),
		zap.String("reason", string(s.Reason)),
	)
	_ = m.store.ClearDrawOffers(ctx, s.ID)
	if s.Winner == "" {
		m.publish(ctx, chessdto.SignalDraw, nil, s.TokenOf(engine.White), s.TokenOf(engine.Black))
	} else {
		m.publish(ctx, chessdto.SignalWin, map[string]string{"reason": string(s.Reason)}, s.TokenOf(s.Winner))
		m.publish(ctx, chessdto.SignalLose, map[string]string{"reason": string(s.Reason)}, s.TokenOf(s.Winner.Invert()))
	}
	if m.arch != nil {
		if err := m.arch.SaveResult(ctx, s); err != nil {
			obslog.L().Error("session_archive_error", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

func (m *Manager) invalidate(ctx context.Context, s *Session) {
	if err := m.store.InvalidateCache(ctx, s.TokenOf(engine.White), s.TokenOf(engine.Black)); err != nil {
		obslog.L().Warn("cache_invalidate_error", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, sig chessdto.Signal, msg any, tags ...string) {
	if m.pub == nil {
		return
	}
	ev := chessdto.Event{Message: msg, Signal: sig, Tags: tags}
	if err := m.pub.Publish(ctx, ev); err != nil {
		obslog.L().Warn("event_publish_error", zap.String("signal", string(sig)), zap.Error(err))
	}
}

func parseMove(move string) (engine.Pos, engine.Pos, error) {
	parts := strings.SplitN(strings.TrimSpace(move), "-", 2)
	if len(parts) != 2 {
		return engine.Pos{}, engine.Pos{}, engine.ErrWrongMove
	}
	from, err := engine.ParseCoors(parts[0])
	if err != nil {
		return engine.Pos{}, engine.Pos{}, err
	}
	to, err := engine.ParseCoors(parts[1])
	if err != nil {
		return engine.Pos{}, engine.Pos{}, err
	}
	return from, to, nil
}

// buildInfo renders a fog-of-war view: until the game ends a player
// sees their own figures plus whatever squares those figures cover.
func buildInfo(s *Session, color engine.Color, now time.Time) (*chessdto.SessionInfo, error) {
	board, err := boardView(s, color)
	if err != nil {
		return nil, err
	}
	info := &chessdto.SessionInfo{
		Board:         board,
		TimeLeft:      s.TimeLeft(color, now),
		EnemyTimeLeft: s.TimeLeft(color.Invert(), now),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		NextTurn:      string(s.NextTurn),
		Color:         string(color),
		Opponent:      s.Players[color.Invert()].User,
		Winner:        string(s.Winner),
	}
	return info, nil
}

func boardView(s *Session, color engine.Color) (*chessdto.BoardView, error) {
	g, err := s.Game()
	if err != nil {
		return nil, fmt.Errorf("reconstruct board: %w", err)
	}
	cells := make(map[string]*chessdto.FigureView)
	if s.Ended() {
		for _, fig := range g.Board.Figures() {
			cells[fig.Pos().Coors()] = figView(fig, true)
		}
	} else {
		for _, pos := range g.Board.VisibleCells(color) {
			fig, err := g.Board.CellToFigure(pos.X, pos.Y)
			if err != nil {
				return nil, err
			}
			if fig == nil {
				cells[pos.Coors()] = nil
				continue
			}
			cells[pos.Coors()] = figView(fig, fig.Color == color)
		}
	}
	view := &chessdto.BoardView{Cells: cells}
	for _, cut := range g.Board.Cuts() {
		view.Cuts = append(view.Cuts, chessdto.CutView{
			Kind:  cut.Kind.Name(),
			Color: string(cut.Color),
		})
	}
	return view, nil
}

func figView(f *engine.Figure, withMoves bool) *chessdto.FigureView {
	fv := &chessdto.FigureView{
		Kind:     f.Kind.Name(),
		Color:    string(f.Color),
		Position: f.Pos().Coors(),
	}
	if withMoves {
		for _, p := range f.Moves() {
			fv.Moves = append(fv.Moves, p.Coors())
		}
	}
	return fv
}
