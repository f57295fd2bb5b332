package engine

import "testing"

func TestTurnAlternation(t *testing.T) {
	g := NewGame()
	if g.Current != White {
		t.Fatalf("white moves first")
	}
	if _, err := g.ApplyMove(Black, Pos{5, 7}, Pos{5, 5}); err != ErrWrongTurn {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
	if _, err := g.ApplyMove(White, Pos{5, 2}, Pos{5, 4}); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if g.Current != Black {
		t.Fatalf("turn did not flip")
	}
	if _, err := g.ApplyMove(Black, Pos{5, 1}, Pos{5, 2}); err != ErrWrongFigure {
		t.Fatalf("expected ErrWrongFigure, got %v", err)
	}
	if g.Current != Black {
		t.Fatalf("rejected move flipped turn")
	}
}

func TestMoveFromEmptyCell(t *testing.T) {
	g := NewGame()
	if _, err := g.ApplyMove(White, Pos{5, 5}, Pos{5, 6}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := g.ApplyMove(White, Pos{9, 1}, Pos{5, 6}); err != ErrOutOfBoard {
		t.Fatalf("expected ErrOutOfBoard, got %v", err)
	}
}

func TestKingCaptureEndsGame(t *testing.T) {
	b := mustParse(t, "Re4,ke8,Ke1")
	g := &Game{Board: b, Current: White}
	res, err := g.ApplyMove(White, Pos{5, 4}, Pos{5, 8})
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if res.Over == nil || res.Over.Winner != White || res.Over.Reason != ReasonCheckmate {
		t.Fatalf("expected white win by king capture, got %+v", res.Over)
	}
	if res.Notation != "e4-e8" {
		t.Fatalf("final move notation missing: %q", res.Notation)
	}
}

func TestBlackCapturesWhiteKing(t *testing.T) {
	b := mustParse(t, "Ke1,qe7,ka8")
	g := &Game{Board: b, Current: Black}
	res, err := g.ApplyMove(Black, Pos{5, 7}, Pos{5, 1})
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if res.Over == nil || res.Over.Winner != Black {
		t.Fatalf("expected black win, got %+v", res.Over)
	}
}

func TestStalemateIsDraw(t *testing.T) {
	// black's king and pawns are boxed in by their own pieces; capturing
	// the last mobile black piece leaves black without a single legal
	// move, which draws, never loses
	b := mustParse(t, "Ke4,Qh1,ka1,pa2,pb2,pb1,rh8")
	g := &Game{Board: b, Current: White}
	res, err := g.ApplyMove(White, Pos{8, 1}, Pos{8, 8})
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if res.Over == nil || res.Over.Reason != ReasonDraw || res.Over.Winner != "" {
		t.Fatalf("expected draw outcome, got %+v", res.Over)
	}
}

func TestLoadGamePreservesTurn(t *testing.T) {
	g := NewGame()
	if _, err := g.ApplyMove(White, Pos{5, 2}, Pos{5, 4}); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	loaded, err := LoadGame(g.Board.String(), g.Current)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if loaded.Current != Black {
		t.Fatalf("loaded turn wrong: %s", loaded.Current)
	}
	if _, err := LoadGame("bogus", White); err != ErrMalformedState {
		t.Fatalf("expected ErrMalformedState, got %v", err)
	}
}
