package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/darkchess-server/pkg/chessdto"
)

// Client is a thin Go binding for the game service HTTP API. All
// game-scoped calls take the token handed out at pairing time.
type Client struct {
	baseURL string
	user    string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithUser sets the identity sent as the X-User header.
func WithUser(user string) Option {
	return func(c *Client) { c.user = user }
}

// WithDial overrides the transport dialer, used by tests to reach an
// in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GameTypes lists the clock disciplines the server accepts.
func (c *Client) GameTypes(ctx context.Context) ([]chessdto.GameTypeInfo, error) {
	var resp chessdto.GameTypesResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/types", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Types, nil
}

// NewGame enters the blind queue. The response is a waiting token or,
// when an opponent was already queued, a started game.
func (c *Client) NewGame(ctx context.Context, gameType, period string) (*chessdto.NewGameResponse, error) {
	req := chessdto.NewGameRequest{Type: gameType, Period: period}
	var resp chessdto.NewGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/game", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// State reports a token's current phase: waiting or live session.
func (c *Client) State(ctx context.Context, token string) (*chessdto.GameStateResponse, error) {
	var resp chessdto.GameStateResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/game/"+url.PathEscape(token), nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel withdraws an unpaired matchmaking ticket.
func (c *Client) Cancel(ctx context.Context, token string) error {
	return c.doJSON(ctx, fasthttp.MethodDelete, "/game/"+url.PathEscape(token), nil, nil, false)
}

// Move plays "<from>-<to>", e.g. "e2-e4". Castling is entered as the
// king's two-square move.
func (c *Client) Move(ctx context.Context, token, move string) (*chessdto.MoveResponse, error) {
	req := chessdto.MoveRequest{Move: move}
	var resp chessdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/game/"+url.PathEscape(token)+"/move", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) OfferDraw(ctx context.Context, token string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/game/"+url.PathEscape(token)+"/draw", nil, nil, false)
}

func (c *Client) AcceptDraw(ctx context.Context, token string) (*chessdto.GameStateResponse, error) {
	var resp chessdto.GameStateResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/game/"+url.PathEscape(token)+"/draw/accept", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RefuseDraw(ctx context.Context, token string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/game/"+url.PathEscape(token)+"/draw/refuse", nil, nil, false)
}

func (c *Client) Resign(ctx context.Context, token string) (*chessdto.GameStateResponse, error) {
	var resp chessdto.GameStateResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/game/"+url.PathEscape(token)+"/resign", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Chat(ctx context.Context, token, text string) error {
	req := chessdto.ChatRequest{Text: text}
	return c.doJSON(ctx, fasthttp.MethodPost, "/game/"+url.PathEscape(token)+"/chat", req, nil, false)
}

// Moves lists the played moves visible to this token.
func (c *Client) Moves(ctx context.Context, token string) ([]chessdto.MoveView, error) {
	var resp chessdto.MovesResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/game/"+url.PathEscape(token)+"/moves", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Moves, nil
}

// BoardPNG fetches the rendered board from this token's point of view.
func (c *Client) BoardPNG(ctx context.Context, token string) ([]byte, error) {
	return c.doRaw(ctx, fasthttp.MethodGet, "/game/"+url.PathEscape(token)+"/board.png")
}

// CreatePoolEntry parks a browsable ticket in the open pool.
func (c *Client) CreatePoolEntry(ctx context.Context, gameType, period string) (*chessdto.NewGameResponse, error) {
	req := chessdto.NewGameRequest{Type: gameType, Period: period}
	var resp chessdto.NewGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/pool", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPool browses open tickets from other users, newest first.
func (c *Client) ListPool(ctx context.Context) ([]chessdto.PoolEntry, error) {
	var resp chessdto.PoolListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/pool", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Pool, nil
}

func (c *Client) AcceptPool(ctx context.Context, id string) (*chessdto.NewGameResponse, error) {
	var resp chessdto.NewGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/pool/"+url.PathEscape(id)+"/accept", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateInvite makes a private game; the returned Invite code is
// single-use.
func (c *Client) CreateInvite(ctx context.Context, gameType, period string) (*chessdto.NewGameResponse, error) {
	req := chessdto.NewGameRequest{Type: gameType, Period: period}
	var resp chessdto.NewGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/invite", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AcceptInvite(ctx context.Context, invite string) (*chessdto.NewGameResponse, error) {
	var resp chessdto.NewGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/invite/"+url.PathEscape(invite)+"/accept", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists a user's archived games. Empty user means the client's
// own identity.
func (c *Client) History(ctx context.Context, user string, limit int) ([]chessdto.GameSummary, error) {
	path := "/history"
	q := url.Values{}
	if strings.TrimSpace(user) != "" {
		q.Set("user", user)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp chessdto.HistoryResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// errorBody mirrors the server's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	c.prepare(req, method, path)
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	if err := c.do(ctx, req, resp, retry); err != nil {
		return err
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	c.prepare(req, method, path)
	if err := c.do(ctx, req, resp, true); err != nil {
		return nil, err
	}
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

func (c *Client) prepare(req *fasthttp.Request, method, path string) {
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.user != "" {
		req.Header.Set("X-User", c.user)
	}
}

// do runs the request with bounded retries. Only transport failures and
// 5xx answers are retried; domain errors surface immediately.
func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, retry bool) error {
	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := decodeError(status, resp.Body())
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return chessdto.DomainError{Code: eb.Error, Message: eb.Message}
	}
	return fmt.Errorf("api error: status=%d body=%s", status, truncate(string(body), 512))
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
