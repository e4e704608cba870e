// Package client holds the player-side half of the presence system: the
// reconnecting transport, the session orchestrator and the remote-player
// interpolator.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joehewett/eriswood/pkg/protocol"
)

// ConnState tracks the transport lifecycle. GaveUp and Closed are terminal:
// a fresh Transport is needed to connect again.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateGaveUp
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateGaveUp:
		return "gave_up"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// socket is the slice of *websocket.Conn the transport uses, so tests can
// substitute fakes.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(rawURL string) (socket, error)

func gorillaDial(rawURL string) (socket, error) {
	ws, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// TransportOptions configures one logical connection to one room.
type TransportOptions struct {
	Host     string // host:port, no scheme
	Room     string
	PlayerID string

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
}

// DefaultTransportOptions returns the standard settings: auto-reconnect with
// 500ms exponential backoff capped at 15s, 10 attempts, 30s heartbeats.
func DefaultTransportOptions(host, room, playerID string) TransportOptions {
	return TransportOptions{
		Host:                 host,
		Room:                 room,
		PlayerID:             playerID,
		AutoReconnect:        true,
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   500 * time.Millisecond,
		ReconnectMaxDelay:    15 * time.Second,
		HeartbeatInterval:    30 * time.Second,
	}
}

// Transport maintains one websocket to a room, with heartbeats and bounded
// exponential-backoff reconnection. Outgoing sends are fire-and-forget: if
// the socket is not open the message is dropped, never queued, because a
// position update is superseded by the next one anyway.
type Transport struct {
	opts TransportOptions
	log  *zap.SugaredLogger
	dial dialFunc

	mu                sync.Mutex
	state             ConnState
	sock              socket
	reconnectAttempts int
	reconnectTimer    *time.Timer
	heartbeatStop     chan struct{}

	writeMu sync.Mutex

	listenerSeq      int
	messageListeners map[int]func(msg any)
	openListeners    map[int]func()
	closeListeners   map[int]func()
}

func NewTransport(opts TransportOptions, log *zap.SugaredLogger) *Transport {
	return &Transport{
		opts:             opts,
		log:              log,
		dial:             gorillaDial,
		state:            StateIdle,
		messageListeners: make(map[int]func(msg any)),
		openListeners:    make(map[int]func()),
		closeListeners:   make(map[int]func()),
	}
}

func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect opens the websocket. It is idempotent: a no-op while already open
// or connecting, and permanently refused after Disconnect or give-up.
func (t *Transport) Connect() error {
	t.mu.Lock()
	switch t.state {
	case StateOpen, StateConnecting:
		t.mu.Unlock()
		return nil
	case StateClosed, StateGaveUp:
		t.mu.Unlock()
		return fmt.Errorf("transport is %s", t.state)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	u := url.URL{
		Scheme:   "ws",
		Host:     t.opts.Host,
		Path:     "/parties/" + t.opts.Room,
		RawQuery: url.Values{"player": {t.opts.PlayerID}}.Encode(),
	}
	t.log.Infof("connecting to %s", u.String())

	sock, err := t.dial(u.String())
	if err != nil {
		t.log.Warnf("dial %s failed: %v", t.opts.Room, err)
		t.mu.Lock()
		var closes []func()
		if t.state == StateConnecting {
			t.state = StateIdle
			t.scheduleReconnectLocked()
			// A dial failure can exhaust the reconnect budget without an open
			// socket ever closing; the terminal state still has to reach
			// close listeners or the UI would show "connecting" forever.
			if t.state == StateGaveUp {
				closes = collect(t.closeListeners)
			}
		}
		t.mu.Unlock()
		for _, fn := range closes {
			fn()
		}
		return err
	}

	t.mu.Lock()
	if t.state != StateConnecting {
		// Disconnect raced the dial.
		t.mu.Unlock()
		_ = sock.Close()
		return fmt.Errorf("transport closed during connect")
	}
	t.sock = sock
	t.state = StateOpen
	t.reconnectAttempts = 0
	t.heartbeatStop = make(chan struct{})
	stop := t.heartbeatStop
	opens := collect(t.openListeners)
	t.mu.Unlock()

	for _, fn := range opens {
		fn()
	}

	go t.readLoop(sock)
	go t.heartbeatLoop(stop)
	return nil
}

// Send marshals and writes a frame, silently dropping it if the socket is
// not open.
func (t *Transport) Send(v any) {
	t.mu.Lock()
	sock := t.sock
	open := t.state == StateOpen
	t.mu.Unlock()
	if !open || sock == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		t.log.Errorf("marshal outgoing message: %v", err)
		return
	}

	t.writeMu.Lock()
	err = sock.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		t.log.Debugf("write failed: %v", err)
	}
}

// Heartbeat sends a liveness ping immediately.
func (t *Transport) Heartbeat() {
	t.Send(protocol.NewHeartbeat(t.opts.PlayerID))
}

// Disconnect tears the connection down for good: no reconnect will follow.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.state = StateClosed
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	t.stopHeartbeatLocked()
	sock := t.sock
	t.sock = nil
	t.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
}

// AddMessageListener registers a handler for decoded server messages and
// returns its unregister function.
func (t *Transport) AddMessageListener(fn func(msg any)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listenerSeq++
	id := t.listenerSeq
	t.messageListeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.messageListeners, id)
	}
}

func (t *Transport) AddOpenListener(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listenerSeq++
	id := t.listenerSeq
	t.openListeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.openListeners, id)
	}
}

func (t *Transport) AddCloseListener(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listenerSeq++
	id := t.listenerSeq
	t.closeListeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.closeListeners, id)
	}
}

func (t *Transport) readLoop(sock socket) {
	for {
		_, payload, err := sock.ReadMessage()
		if err != nil {
			t.handleClose(sock)
			return
		}

		msg, err := protocol.DecodeServerMessage(payload)
		if err != nil {
			// Unknown or malformed frames are ignored; the connection stays up.
			t.log.Warnf("ignoring server frame: %v", err)
			continue
		}

		t.mu.Lock()
		listeners := collect(t.messageListeners)
		t.mu.Unlock()
		for _, fn := range listeners {
			fn(msg)
		}
	}
}

func (t *Transport) heartbeatLoop(stop chan struct{}) {
	t.Heartbeat()
	ticker := time.NewTicker(t.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Heartbeat()
		case <-stop:
			return
		}
	}
}

func (t *Transport) handleClose(sock socket) {
	t.mu.Lock()
	if t.sock != sock {
		// A newer connection already replaced this one.
		t.mu.Unlock()
		return
	}
	t.sock = nil
	t.stopHeartbeatLocked()
	closes := collect(t.closeListeners)
	manual := t.state == StateClosed
	if !manual {
		t.state = StateIdle
		t.scheduleReconnectLocked()
	}
	t.mu.Unlock()

	_ = sock.Close()
	for _, fn := range closes {
		fn()
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// transitions to the terminal GaveUp state once the budget is spent.
func (t *Transport) scheduleReconnectLocked() {
	if !t.opts.AutoReconnect {
		return
	}
	if t.reconnectAttempts >= t.opts.MaxReconnectAttempts {
		t.state = StateGaveUp
		t.log.Errorf("room %s: max reconnect attempts reached, giving up", t.opts.Room)
		return
	}

	delay := backoffDelay(t.reconnectAttempts, t.opts.ReconnectBaseDelay, t.opts.ReconnectMaxDelay)
	t.reconnectAttempts++
	t.state = StateReconnecting
	t.log.Infof("room %s: reconnecting in %s (attempt %d)", t.opts.Room, delay, t.reconnectAttempts)

	t.reconnectTimer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.state != StateReconnecting {
			t.mu.Unlock()
			return
		}
		t.state = StateIdle
		t.mu.Unlock()
		_ = t.Connect()
	})
}

func (t *Transport) stopHeartbeatLocked() {
	if t.heartbeatStop != nil {
		close(t.heartbeatStop)
		t.heartbeatStop = nil
	}
}

// backoffDelay returns base * 2^attempt capped at max, so the Nth retry
// (attempt N-1) waits min(base * 2^(N-1), max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func collect[T any](m map[int]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
