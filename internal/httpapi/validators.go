package httpapi

import (
	"regexp"
	"strings"

	"github.com/park285/darkchess-server/internal/session"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

var moveRe = regexp.MustCompile(`^[a-h][1-8]-[a-h][1-8]$`)

// ValidMove checks the wire move format. Castling is entered as the
// king's two-square move, so no extra notation is accepted here.
func ValidMove(move string) bool {
	return moveRe.MatchString(strings.TrimSpace(move))
}

// ValidateNewGame resolves the request's type and period names.
func ValidateNewGame(req *chessdto.NewGameRequest) (session.GameType, string, error) {
	gt, ok := session.ParseGameType(strings.TrimSpace(req.Type))
	if !ok {
		return "", "", errBadGameType
	}
	period := strings.TrimSpace(req.Period)
	if _, err := session.PeriodSeconds(gt, period); err != nil {
		return "", "", err
	}
	return gt, period, nil
}

// ChatLimit bounds a chat line; longer input is rejected, not clipped.
const ChatLimit = 500

func ValidChat(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && len(t) <= ChatLimit
}
