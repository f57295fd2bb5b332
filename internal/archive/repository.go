package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/darkchess-server/internal/engine"
	"github.com/park285/darkchess-server/internal/session"
)

// Repository persists finished games to postgres. The session store in
// redis eventually expires; this is the durable record.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a final game. Replaying the same end event is
// harmless, the row converges on the same values.
func (r *Repository) SaveResult(ctx context.Context, s *session.Session) error {
	if r == nil || r.db == nil || s == nil || !s.Ended() {
		return nil
	}
	movesRaw, err := json.Marshal(s.Moves)
	if err != nil {
		return err
	}
	duration := s.EndedAt.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	q := `INSERT INTO games (
	    session_id, game_type, period, white_user, black_user,
	    final_board, winner, reason, moves,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (session_id) DO UPDATE SET
	    final_board=EXCLUDED.final_board,
	    winner=EXCLUDED.winner,
	    reason=EXCLUDED.reason,
	    moves=EXCLUDED.moves,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, string(s.Type), s.PeriodName,
		s.Players[engine.White].User, s.Players[engine.Black].User,
		s.Board, string(s.Winner), string(s.Reason), string(movesRaw),
		s.StartedAt, *s.EndedAt, duration,
	)
	return err
}

// Record is one archived game as listed for a user.
type Record struct {
	SessionID string    `json:"session_id"`
	GameType  string    `json:"game_type"`
	Period    string    `json:"period,omitempty"`
	WhiteUser string    `json:"white_user,omitempty"`
	BlackUser string    `json:"black_user,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	MoveCount int       `json:"move_count"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// ListByUser returns a user's finished games, newest first.
func (r *Repository) ListByUser(ctx context.Context, user string, limit int) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `SELECT session_id, game_type, period, white_user, black_user,
	             winner, reason, jsonb_array_length(moves), started_at, ended_at
	      FROM games
	      WHERE white_user = $1 OR black_user = $1
	      ORDER BY ended_at DESC
	      LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, strings.TrimSpace(user), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.GameType, &rec.Period,
			&rec.WhiteUser, &rec.BlackUser, &rec.Winner, &rec.Reason,
			&rec.MoveCount, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
