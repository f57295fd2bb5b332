package httpapi

import (
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/park285/darkchess-server/internal/engine"
	"github.com/park285/darkchess-server/internal/matchmaking"
	"github.com/park285/darkchess-server/internal/msgcat"
	"github.com/park285/darkchess-server/internal/session"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

type apiErr string

func (e apiErr) Error() string { return string(e) }

const (
	errBadGameType = apiErr("bad game type")
	errBadMove     = apiErr("bad move format")
	errBadBody     = apiErr("bad request body")
)

// statusAndCode maps a domain failure to its HTTP status and message
// catalog key. Unknown errors stay internal.
func statusAndCode(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrOutOfBoard):
		return fasthttp.StatusBadRequest, "errors.out_of_board"
	case errors.Is(err, engine.ErrCellOccupied):
		return fasthttp.StatusConflict, "errors.cell_occupied"
	case errors.Is(err, engine.ErrWrongMove):
		return fasthttp.StatusConflict, "errors.wrong_move"
	case errors.Is(err, engine.ErrWrongFigure):
		return fasthttp.StatusConflict, "errors.wrong_figure"
	case errors.Is(err, engine.ErrWrongTurn):
		return fasthttp.StatusConflict, "errors.wrong_turn"
	case errors.Is(err, engine.ErrNotFound):
		return fasthttp.StatusConflict, "errors.not_found"
	case errors.Is(err, session.ErrUnknownToken):
		return fasthttp.StatusNotFound, "errors.not_started"
	case errors.Is(err, session.ErrGameOver):
		return fasthttp.StatusConflict, "errors.game_over"
	case errors.Is(err, session.ErrNoDrawOffer):
		return fasthttp.StatusConflict, "errors.no_draw_offer"
	case errors.Is(err, session.ErrBadPeriod):
		return fasthttp.StatusBadRequest, "errors.bad_period"
	case errors.Is(err, matchmaking.ErrUnknownTicket):
		return fasthttp.StatusNotFound, "errors.not_started"
	case errors.Is(err, matchmaking.ErrTicketGone):
		return fasthttp.StatusConflict, "errors.pool_entry_gone"
	case errors.Is(err, errBadGameType):
		return fasthttp.StatusBadRequest, "errors.bad_game_type"
	case errors.Is(err, errBadMove):
		return fasthttp.StatusBadRequest, "errors.bad_move_format"
	case errors.Is(err, errBadBody):
		return fasthttp.StatusBadRequest, "errors.bad_request"
	default:
		return fasthttp.StatusInternalServerError, ""
	}
}

// toDomain renders the user-facing error with catalog text.
func toDomain(cat *msgcat.Catalog, err error) (int, chessdto.DomainError) {
	status, code := statusAndCode(err)
	if code == "" {
		return status, chessdto.DomainError{Code: "internal", Message: "internal error"}
	}
	return status, chessdto.DomainError{Code: code, Message: cat.MustRender(code, nil)}
}
