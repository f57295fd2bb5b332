package client

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/darkchess-server/pkg/chessdto"
)

// FeedState tracks the event feed connection lifecycle.
type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedConnected    FeedState = "connected"
	FeedReconnecting FeedState = "reconnecting"
	FeedFailed       FeedState = "failed"
)

type EventCallback func(ev *chessdto.Event)

type StateCallback func(state FeedState)

// tagFrame is the only control message the feed sends upstream: a full
// replacement of the tag subscription.
type tagFrame struct {
	Tags []string `json:"tags"`
}

// EventFeed is a reconnecting websocket subscription to the game event
// fanout. Tags survive reconnects; they are replayed after every dial.
type EventFeed struct {
	wsURL string

	conn   *websocket.Conn
	state  FeedState
	stateM sync.RWMutex

	tags  []string
	tagsM sync.RWMutex

	evCbs    []EventCallback
	stateCbs []StateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewEventFeed(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *EventFeed {
	return &EventFeed{
		wsURL:                wsURL,
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// OnEvent registers a callback for every received game event.
func (f *EventFeed) OnEvent(cb EventCallback) {
	f.cbM.Lock()
	f.evCbs = append(f.evCbs, cb)
	f.cbM.Unlock()
}

func (f *EventFeed) OnStateChange(cb StateCallback) {
	f.cbM.Lock()
	f.stateCbs = append(f.stateCbs, cb)
	f.cbM.Unlock()
}

// Subscribe replaces the tag set. Typically tags are the player's game
// tokens; an empty set means broadcasts only.
func (f *EventFeed) Subscribe(ctx context.Context, tags ...string) error {
	f.tagsM.Lock()
	f.tags = append([]string(nil), tags...)
	f.tagsM.Unlock()
	return f.sendTags(ctx)
}

func (f *EventFeed) sendTags(ctx context.Context) error {
	if f.conn == nil {
		return nil
	}
	f.tagsM.RLock()
	frame := tagFrame{Tags: append([]string(nil), f.tags...)}
	f.tagsM.RUnlock()
	return wsjson.Write(ctx, f.conn, frame)
}

func (f *EventFeed) Connect(ctx context.Context) error {
	f.stateM.Lock()
	if f.state == FeedConnected || f.state == FeedConnecting {
		f.stateM.Unlock()
		return nil
	}
	f.stateM.Unlock()

	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	f.setState(FeedConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		f.setState(FeedFailed)
		f.scheduleReconnect()
		return err
	}

	f.conn = conn
	f.setState(FeedConnected)
	_ = f.sendTags(ctx)

	f.wg.Add(2)
	go f.listen()
	go f.pingLoop()
	return nil
}

func (f *EventFeed) listen() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if f.conn == nil {
			return
		}
		var ev chessdto.Event
		if err := wsjson.Read(f.rootCtx, f.conn, &ev); err != nil {
			if f.isStopping() {
				return
			}
			f.setState(FeedDisconnected)
			_ = f.closeConn(websocket.StatusGoingAway, "reconnect")
			f.scheduleReconnect()
			return
		}

		f.cbM.RLock()
		callbacks := append([]EventCallback(nil), f.evCbs...)
		f.cbM.RUnlock()
		for _, cb := range callbacks {
			if cb != nil {
				cb(&ev)
			}
		}
	}
}

func (f *EventFeed) pingLoop() {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			if f.conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := f.conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if f.isStopping() {
						return
					}
					f.setState(FeedDisconnected)
					_ = f.closeConn(websocket.StatusGoingAway, "ping failure")
					f.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (f *EventFeed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 {
		return
	}
	f.setState(FeedReconnecting)

	go func() {
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(f.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				continue
			}

			f.conn = conn
			f.setState(FeedConnected)
			_ = f.sendTags(f.rootCtx)

			f.wg.Add(2)
			go f.listen()
			go f.pingLoop()
			return
		}
		f.setState(FeedFailed)
	}()
}

func (f *EventFeed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := append([]StateCallback(nil), f.stateCbs...)
	f.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(state)
		}
	}
}

func (f *EventFeed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

func (f *EventFeed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	_ = f.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if f.rootCancel != nil {
			f.rootCancel()
		}
		return nil
	}
}

func (f *EventFeed) closeConn(code websocket.StatusCode, reason string) error {
	if f.conn == nil {
		return nil
	}
	defer func() { f.conn = nil }()
	return f.conn.Close(code, reason)
}

func (f *EventFeed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}
