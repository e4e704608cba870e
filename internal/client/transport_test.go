package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joehewett/eriswood/internal/logging"
	"github.com/joehewett/eriswood/pkg/protocol"
)

// fakeSocket is an in-memory socket: writes are recorded, reads drain the
// incoming channel until the socket closes.
type fakeSocket struct {
	mu       sync.Mutex
	writes   [][]byte
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-s.incoming:
		return websocket.TextMessage, msg, nil
	case <-s.closed:
		return 0, nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	select {
	case <-s.closed:
		return errors.New("socket closed")
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

func testOptions() TransportOptions {
	opts := DefaultTransportOptions("localhost:1999", "location-1", "p1")
	opts.ReconnectBaseDelay = time.Millisecond
	opts.ReconnectMaxDelay = 4 * time.Millisecond
	return opts
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBackoffDelaySchedule(t *testing.T) {
	base := 500 * time.Millisecond
	max := 15 * time.Second

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		15 * time.Second, // 16s capped
		15 * time.Second,
	}
	for attempt, expected := range want {
		if got := backoffDelay(attempt, base, max); got != expected {
			t.Errorf("attempt %d: expected %s, got %s", attempt, expected, got)
		}
	}
}

func TestSendDroppedWhenNotOpen(t *testing.T) {
	tr := NewTransport(testOptions(), logging.Nop())
	// Must be a silent no-op, not a panic or a queue.
	tr.Send(protocol.NewHeartbeat("p1"))
	if tr.State() != StateIdle {
		t.Fatalf("expected idle state, got %s", tr.State())
	}
}

func TestConnectSendsImmediateHeartbeat(t *testing.T) {
	sock := newFakeSocket()
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) { return sock, nil }

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	waitFor(t, func() bool { return len(sock.written()) >= 1 }, "heartbeat write")

	msg, err := protocol.DecodeClientMessage(sock.written()[0])
	if err != nil {
		t.Fatalf("decode first write: %v", err)
	}
	hb, ok := msg.(protocol.Heartbeat)
	if !ok || hb.PlayerID != "p1" {
		t.Fatalf("expected immediate heartbeat for p1, got %+v", msg)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	dials := 0
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) {
		dials++
		return newFakeSocket(), nil
	}

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()
	if err := tr.Connect(); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected a single dial, got %d", dials)
	}
}

func TestOpenListenersNotifiedAndUnsubscribable(t *testing.T) {
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) { return newFakeSocket(), nil }

	opened := 0
	unsub := tr.AddOpenListener(func() { opened++ })
	unsub()
	tr.AddOpenListener(func() { opened += 10 })

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	if opened != 10 {
		t.Fatalf("expected only the live listener to fire, counter=%d", opened)
	}
}

func TestMessageListenerReceivesDecodedFrames(t *testing.T) {
	sock := newFakeSocket()
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) { return sock, nil }

	var mu sync.Mutex
	var got []any
	tr.AddMessageListener(func(msg any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	// A malformed frame must be skipped without killing the connection.
	sock.incoming <- []byte("{broken")
	left, _ := json.Marshal(protocol.PlayerLeft{Type: protocol.TypePlayerLeft, PlayerID: "p9"})
	sock.incoming <- left

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "decoded message dispatch")

	mu.Lock()
	defer mu.Unlock()
	if msg, ok := got[0].(protocol.PlayerLeft); !ok || msg.PlayerID != "p9" {
		t.Fatalf("expected player_left for p9, got %+v", got[0])
	}
}

func TestReconnectsAfterUnexpectedClose(t *testing.T) {
	var mu sync.Mutex
	var socks []*fakeSocket
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) {
		mu.Lock()
		defer mu.Unlock()
		s := newFakeSocket()
		socks = append(socks, s)
		return s, nil
	}

	closes := 0
	tr.AddCloseListener(func() {
		mu.Lock()
		defer mu.Unlock()
		closes++
	})

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	mu.Lock()
	first := socks[0]
	mu.Unlock()
	_ = first.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(socks) >= 2
	}, "redial after unexpected close")
	waitFor(t, func() bool { return tr.State() == StateOpen }, "reopened state")

	mu.Lock()
	defer mu.Unlock()
	if closes != 1 {
		t.Fatalf("expected one close notification, got %d", closes)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	opts := testOptions()
	opts.MaxReconnectAttempts = 2

	dials := 0
	var mu sync.Mutex
	tr := NewTransport(opts, logging.Nop())
	tr.dial = func(string) (socket, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return nil, errors.New("refused")
	}

	if err := tr.Connect(); err == nil {
		t.Fatal("expected initial connect error")
	}

	waitFor(t, func() bool { return tr.State() == StateGaveUp }, "terminal give-up state")

	mu.Lock()
	finalDials := dials
	mu.Unlock()
	// Initial attempt plus the two retries in the budget.
	if finalDials != 3 {
		t.Fatalf("expected 3 dials, got %d", finalDials)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if dials != finalDials {
		t.Fatalf("transport kept dialing after giving up: %d", dials)
	}
}

func TestGiveUpNotifiesCloseListeners(t *testing.T) {
	opts := testOptions()
	opts.MaxReconnectAttempts = 2

	tr := NewTransport(opts, logging.Nop())
	tr.dial = func(string) (socket, error) { return nil, errors.New("refused") }

	var mu sync.Mutex
	notified := 0
	tr.AddCloseListener(func() {
		mu.Lock()
		defer mu.Unlock()
		notified++
	})

	_ = tr.Connect()

	waitFor(t, func() bool { return tr.State() == StateGaveUp }, "terminal give-up state")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return notified >= 1
	}, "close notification on give-up")
}

func TestDisconnectIsTerminal(t *testing.T) {
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) { return newFakeSocket(), nil }

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tr.Disconnect()

	if tr.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", tr.State())
	}
	if err := tr.Connect(); err == nil {
		t.Fatal("connect after disconnect should fail")
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	dials := 0
	var mu sync.Mutex
	var last *fakeSocket
	tr := NewTransport(testOptions(), logging.Nop())
	tr.dial = func(string) (socket, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		last = newFakeSocket()
		return last, nil
	}

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tr.Disconnect()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Fatalf("manual disconnect triggered a reconnect, dials=%d", dials)
	}
}

// Against a real websocket server: the transport hits /parties/{room} and
// dispatches what the room pushes.
func TestTransportAgainstHTTPServer(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	var mu sync.Mutex
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		list, _ := json.Marshal(protocol.PlayerList{Type: protocol.TypePlayerList})
		_ = ws.WriteMessage(websocket.TextMessage, list)

		// Hold the connection open until the client walks away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	opts := DefaultTransportOptions(u.Host, "location-3", "p1")
	opts.AutoReconnect = false
	tr := NewTransport(opts, logging.Nop())

	var received sync.WaitGroup
	received.Add(1)
	var once sync.Once
	tr.AddMessageListener(func(msg any) {
		if _, ok := msg.(protocol.PlayerList); ok {
			once.Do(received.Done)
		}
	})

	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	done := make(chan struct{})
	go func() { received.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(gotPath, "/parties/location-3") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}
