package httpapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/darkchess-server/internal/archive"
	"github.com/park285/darkchess-server/internal/boardimg"
	"github.com/park285/darkchess-server/internal/matchmaking"
	"github.com/park285/darkchess-server/internal/msgcat"
	"github.com/park285/darkchess-server/internal/obslog"
	"github.com/park285/darkchess-server/internal/session"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

// Server is the fasthttp front of the game service. Routing is a hand
// rolled path switch; the surface is small enough that a router
// dependency would carry more weight than the switch.
type Server struct {
	sessions *session.Manager
	mm       *matchmaking.Manager
	cat      *msgcat.Catalog
	renderer *boardimg.Renderer
	arch     *archive.Repository
}

func NewServer(sm *session.Manager, mm *matchmaking.Manager, cat *msgcat.Catalog) *Server {
	return &Server{sessions: sm, mm: mm, cat: cat, renderer: boardimg.NewRenderer()}
}

// AttachArchive enables the /history listing.
func (s *Server) AttachArchive(r *archive.Repository) { s.arch = r }

// Handler wraps routing with panic recovery and request logging.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				obslog.L().Error("http_panic", zap.Any("panic", r), zap.ByteString("path", ctx.Path()))
				ctx.Response.Reset()
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			}
			obslog.L().Info("http_request",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("elapsed", time.Since(start)),
			)
		}()
		s.route(ctx)
	}
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	method := string(ctx.Method())
	switch parts[0] {
	case "game":
		s.routeGame(ctx, method, parts[1:])
	case "pool":
		s.routePool(ctx, method, parts[1:])
	case "invite":
		s.routeInvite(ctx, method, parts[1:])
	case "types":
		if method == fasthttp.MethodGet && len(parts) == 1 {
			s.handleTypes(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	case "history":
		if method == fasthttp.MethodGet && len(parts) == 1 {
			s.handleHistory(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) routeGame(ctx *fasthttp.RequestCtx, method string, rest []string) {
	switch {
	case len(rest) == 0 || rest[0] == "":
		if method == fasthttp.MethodPost {
			s.handleNewGame(ctx)
			return
		}
	case len(rest) == 1:
		switch method {
		case fasthttp.MethodGet:
			s.handleGameState(ctx, rest[0])
			return
		case fasthttp.MethodDelete:
			s.handleCancel(ctx, rest[0])
			return
		}
	case len(rest) == 2:
		token := rest[0]
		switch {
		case rest[1] == "move" && method == fasthttp.MethodPost:
			s.handleMove(ctx, token)
			return
		case rest[1] == "draw" && method == fasthttp.MethodPost:
			s.handleDrawOffer(ctx, token)
			return
		case rest[1] == "resign" && method == fasthttp.MethodPost:
			s.handleResign(ctx, token)
			return
		case rest[1] == "chat" && method == fasthttp.MethodPost:
			s.handleChat(ctx, token)
			return
		case rest[1] == "moves" && method == fasthttp.MethodGet:
			s.handleMoves(ctx, token)
			return
		case rest[1] == "board.png" && method == fasthttp.MethodGet:
			s.handleBoardPNG(ctx, token)
			return
		}
	case len(rest) == 3 && rest[1] == "draw":
		token := rest[0]
		switch {
		case rest[2] == "accept" && method == fasthttp.MethodPost:
			s.handleDrawAccept(ctx, token)
			return
		case rest[2] == "refuse" && method == fasthttp.MethodPost:
			s.handleDrawRefuse(ctx, token)
			return
		}
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (s *Server) routePool(ctx *fasthttp.RequestCtx, method string, rest []string) {
	switch {
	case len(rest) == 0 || rest[0] == "":
		switch method {
		case fasthttp.MethodGet:
			s.handlePoolList(ctx)
			return
		case fasthttp.MethodPost:
			s.handlePoolCreate(ctx)
			return
		}
	case len(rest) == 2 && rest[1] == "accept" && method == fasthttp.MethodPost:
		s.handlePoolAccept(ctx, rest[0])
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (s *Server) routeInvite(ctx *fasthttp.RequestCtx, method string, rest []string) {
	switch {
	case len(rest) == 0 || rest[0] == "":
		if method == fasthttp.MethodPost {
			s.handleInviteCreate(ctx)
			return
		}
	case len(rest) == 2 && rest[1] == "accept" && method == fasthttp.MethodPost:
		s.handleInviteAccept(ctx, rest[0])
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (s *Server) handleNewGame(ctx *fasthttp.RequestCtx) {
	gt, period, ok := s.readNewGame(ctx)
	if !ok {
		return
	}
	res, err := s.mm.Request(ctx, s.user(ctx), gt, period)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writePairing(ctx, res)
}

func (s *Server) handlePoolCreate(ctx *fasthttp.RequestCtx) {
	gt, period, ok := s.readNewGame(ctx)
	if !ok {
		return
	}
	res, err := s.mm.CreatePoolEntry(ctx, s.user(ctx), gt, period)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writePairing(ctx, res)
}

func (s *Server) handlePoolList(ctx *fasthttp.RequestCtx) {
	entries, err := s.mm.ListPool(ctx, s.user(ctx))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.PoolListResponse{Pool: entries})
}

func (s *Server) handlePoolAccept(ctx *fasthttp.RequestCtx, id string) {
	res, err := s.mm.AcceptPool(ctx, id, s.user(ctx))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writePairing(ctx, res)
}

func (s *Server) handleInviteCreate(ctx *fasthttp.RequestCtx) {
	gt, period, ok := s.readNewGame(ctx)
	if !ok {
		return
	}
	res, err := s.mm.CreateInvite(ctx, s.user(ctx), gt, period)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writePairing(ctx, res)
}

func (s *Server) handleInviteAccept(ctx *fasthttp.RequestCtx, invite string) {
	res, err := s.mm.AcceptInvite(ctx, invite, s.user(ctx))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writePairing(ctx, res)
}

// handleGameState answers both phases of a token's life: a waiting
// matchmaking ticket or a live session.
func (s *Server) handleGameState(ctx *fasthttp.RequestCtx, token string) {
	if s.serveCached(ctx, token, "info") {
		return
	}
	info, err := s.sessions.Info(ctx, token)
	if err == session.ErrUnknownToken {
		w, werr := s.mm.Waiting(ctx, token)
		if werr != nil {
			s.writeError(ctx, werr)
			return
		}
		s.writeJSON(ctx, fasthttp.StatusOK, chessdto.GameStateResponse{Waiting: w})
		return
	}
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSONCached(ctx, token, "info", chessdto.GameStateResponse{Info: info})
}

func (s *Server) handleCancel(ctx *fasthttp.RequestCtx, token string) {
	if err := s.mm.Cancel(ctx, token); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx, token string) {
	var req chessdto.MoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeError(ctx, errBadBody)
		return
	}
	if !ValidMove(req.Move) {
		s.writeError(ctx, errBadMove)
		return
	}
	_, rec, err := s.sessions.Move(ctx, token, strings.TrimSpace(req.Move))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	info, err := s.sessions.Info(ctx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.MoveResponse{Move: rec.Move, Info: info})
}

func (s *Server) handleDrawOffer(ctx *fasthttp.RequestCtx, token string) {
	if err := s.sessions.OfferDraw(ctx, token); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleDrawAccept(ctx *fasthttp.RequestCtx, token string) {
	if _, err := s.sessions.AcceptDraw(ctx, token); err != nil {
		s.writeError(ctx, err)
		return
	}
	info, err := s.sessions.Info(ctx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.GameStateResponse{Info: info})
}

func (s *Server) handleDrawRefuse(ctx *fasthttp.RequestCtx, token string) {
	if err := s.sessions.RefuseDraw(ctx, token); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleResign(ctx *fasthttp.RequestCtx, token string) {
	if _, err := s.sessions.Resign(ctx, token); err != nil {
		s.writeError(ctx, err)
		return
	}
	info, err := s.sessions.Info(ctx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.GameStateResponse{Info: info})
}

func (s *Server) handleChat(ctx *fasthttp.RequestCtx, token string) {
	var req chessdto.ChatRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeError(ctx, errBadBody)
		return
	}
	if !ValidChat(req.Text) {
		s.writeError(ctx, errBadBody)
		return
	}
	if err := s.sessions.Chat(ctx, token, strings.TrimSpace(req.Text)); err != nil {
		s.writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleMoves(ctx *fasthttp.RequestCtx, token string) {
	if s.serveCached(ctx, token, "moves") {
		return
	}
	list, err := s.sessions.MovesList(ctx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSONCached(ctx, token, "moves", chessdto.MovesResponse{Moves: list})
}

func (s *Server) handleBoardPNG(ctx *fasthttp.RequestCtx, token string) {
	if raw, err := s.sessions.Store().CachedResponse(ctx, token, "board"); err == nil && raw != nil {
		ctx.SetContentType("image/png")
		ctx.SetBody(raw)
		return
	}
	view, color, err := s.sessions.BoardFor(ctx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	raw, err := s.renderer.RenderPNG(ctx, view, string(color))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if err := s.sessions.Store().CacheResponse(ctx, token, "board", raw); err != nil {
		obslog.L().Warn("cache_write_error", zap.Error(err))
	}
	ctx.SetContentType("image/png")
	ctx.SetBody(raw)
}

func (s *Server) handleTypes(ctx *fasthttp.RequestCtx) {
	resp := chessdto.GameTypesResponse{
		Types: []chessdto.GameTypeInfo{
			{Type: string(session.TypeNoLimit)},
			{Type: string(session.TypeSlow), Limits: session.PeriodNames(session.TypeSlow)},
			{Type: string(session.TypeFast), Limits: session.PeriodNames(session.TypeFast)},
		},
	}
	s.writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleHistory(ctx *fasthttp.RequestCtx) {
	if s.arch == nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	user := strings.TrimSpace(string(ctx.QueryArgs().Peek("user")))
	if user == "" {
		user = s.user(ctx)
	}
	limit, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))
	recs, err := s.arch.ListByUser(ctx, user, limit)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{"games": recs})
}

func (s *Server) readNewGame(ctx *fasthttp.RequestCtx) (session.GameType, string, bool) {
	var req chessdto.NewGameRequest
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			s.writeError(ctx, errBadBody)
			return "", "", false
		}
	}
	if strings.TrimSpace(req.Type) == "" {
		req.Type = string(session.TypeNoLimit)
	}
	gt, period, err := ValidateNewGame(&req)
	if err != nil {
		s.writeError(ctx, err)
		return "", "", false
	}
	return gt, period, true
}

// writePairing answers creation and accept endpoints uniformly.
func (s *Server) writePairing(ctx *fasthttp.RequestCtx, res *matchmaking.Result) {
	resp := chessdto.NewGameResponse{Game: res.Token, Invite: res.Invite}
	if res.Session != nil {
		info, err := s.sessions.Info(ctx, res.Token)
		if err != nil {
			s.writeError(ctx, err)
			return
		}
		resp.Info = info
	}
	s.writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) user(ctx *fasthttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek("X-User")))
}

func (s *Server) serveCached(ctx *fasthttp.RequestCtx, token, kind string) bool {
	raw, err := s.sessions.Store().CachedResponse(ctx, token, kind)
	if err != nil || raw == nil {
		return false
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
	return true
}

func (s *Server) writeJSONCached(ctx *fasthttp.RequestCtx, token, kind string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if err := s.sessions.Store().CacheResponse(ctx, token, kind, raw); err != nil {
		obslog.L().Warn("cache_write_error", zap.Error(err))
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("response_encode_error", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error) {
	status, derr := toDomain(s.cat, err)
	if status == fasthttp.StatusInternalServerError {
		obslog.L().Error("http_internal_error", zap.ByteString("path", ctx.Path()), zap.Error(err))
	}
	s.writeJSON(ctx, status, map[string]string{
		"error":   derr.Code,
		"message": derr.Message,
	})
}

// Serve runs the API until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler fasthttp.RequestHandler) error {
	srv := &fasthttp.Server{
		Handler:            handler,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		MaxRequestBodySize: 64 * 1024,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()
	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-errCh:
		return err
	}
}
