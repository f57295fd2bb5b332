package engine

import (
	"fmt"
	"strings"
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Invert returns the opposing color.
func (c Color) Invert() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) valid() bool { return c == White || c == Black }

// Kind tags a figure with its movement rules. The value doubles as the
// lowercase serialization letter.
type Kind byte

const (
	Pawn   Kind = 'p'
	Rook   Kind = 'r'
	Knight Kind = 'n'
	Bishop Kind = 'b'
	Queen  Kind = 'q'
	King   Kind = 'k'
)

// Name returns the long kind name used in wire payloads.
func (k Kind) Name() string {
	switch k {
	case Pawn:
		return "pawn"
	case Rook:
		return "rook"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "unknown"
}

func kindOf(letter byte) (Kind, bool) {
	switch Kind(letter) {
	case Pawn, Rook, Knight, Bishop, Queen, King:
		return Kind(letter), true
	}
	return 0, false
}

// Pos is a board coordinate; files and ranks both run 1..8.
type Pos struct {
	X int
	Y int
}

func onBoard(x, y int) bool {
	return x >= 1 && x <= 8 && y >= 1 && y <= 8
}

const files = "abcdefgh"

// Coors renders a position in file-letter+rank form ("e2").
func (p Pos) Coors() string {
	if !onBoard(p.X, p.Y) {
		return "??"
	}
	return fmt.Sprintf("%c%d", files[p.X-1], p.Y)
}

// ParseCoors converts "e2" into a Pos.
func ParseCoors(s string) (Pos, error) {
	if len(s) != 2 {
		return Pos{}, ErrOutOfBoard
	}
	x := strings.IndexByte(files, s[0]|0x20) + 1
	y := int(s[1] - '0')
	if x == 0 || !onBoard(x, y) {
		return Pos{}, ErrOutOfBoard
	}
	return Pos{X: x, Y: y}, nil
}

// EndReason explains how a game finished.
type EndReason string

const (
	ReasonCheckmate EndReason = "checkmate" // king captured
	ReasonDraw      EndReason = "draw"
	ReasonResign    EndReason = "resign"
	ReasonTime      EndReason = "time"
)

// GameOver is the terminal outcome of a move. Winner is empty for a draw.
type GameOver struct {
	Winner Color
	Reason EndReason
}

var (
	rookDirs   = []Pos{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs = []Pos{{1, 1}, {-1, -1}, {1, -1}, {-1, 1}}
	queenDirs  = append(append([]Pos{}, bishopDirs...), rookDirs...)
	kingSteps  = queenDirs
	knightJumps = []Pos{
		{1, 2}, {1, -2}, {-1, 2}, {-1, -2},
		{2, 1}, {2, -1}, {-2, 1}, {-2, -1},
	}
)
