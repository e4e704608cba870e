package client

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joehewett/eriswood/internal/model"
	"github.com/joehewett/eriswood/pkg/protocol"
)

// Status is the connection state the UI layer renders.
type Status struct {
	Connected  bool
	Connecting bool
	Err        string
}

type SessionOptions struct {
	Host          string
	PlayerName    string
	FixedPlayerID string // named demo identity; empty means read-or-generate
	SpriteVariant int

	// UpdateThrottle caps outgoing publication; 0 means the 100ms default.
	UpdateThrottle time.Duration
}

// localState is the most recent local player sample. A send skipped by the
// throttle is never queued: the next allowed send simply carries whatever the
// state is then.
type localState struct {
	position model.Position
	frame    int
	moving   bool
	facing   model.FacingDirection
}

// Session binds local game state to a room. It owns this player's identity,
// throttles outgoing updates, and maintains the roster of other players as
// eventually-consistent copies of the room's broadcasts.
type Session struct {
	opts SessionOptions
	log  *zap.SugaredLogger

	playerID string

	// Seams for tests.
	newTransport func(TransportOptions, *zap.SugaredLogger) *Transport
	now          func() time.Time

	mu        sync.Mutex
	location  model.GameLocation
	transport *Transport
	unsubs    []func()
	status    Status
	others    map[string]model.PlayerState
	local     localState
	lastSend  time.Time
	hasSent   bool
}

func NewSession(opts SessionOptions, log *zap.SugaredLogger) *Session {
	if opts.UpdateThrottle <= 0 {
		opts.UpdateThrottle = 100 * time.Millisecond
	}
	if opts.PlayerName == "" {
		opts.PlayerName = "Anonymous"
	}
	return &Session{
		opts:         opts,
		log:          log,
		playerID:     ResolvePlayerID(opts.FixedPlayerID),
		newTransport: NewTransport,
		now:          time.Now,
		others:       make(map[string]model.PlayerState),
	}
}

func (s *Session) PlayerID() string { return s.playerID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Others returns a copy of the remote-player roster, ordered by player id.
func (s *Session) Others() []model.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PlayerState, 0, len(s.others))
	for _, p := range s.others {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// SetLocation binds the session to the room for loc, tearing down any prior
// connection first. The old transport's timers and socket are fully released.
func (s *Session) SetLocation(loc model.GameLocation) {
	s.mu.Lock()
	if s.transport != nil && s.location == loc && s.transport.State() != StateGaveUp {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.location = loc
	s.status = Status{Connecting: true}
	s.others = make(map[string]model.PlayerState)
	s.hasSent = false

	t := s.newTransport(DefaultTransportOptions(s.opts.Host, protocol.RoomName(loc), s.playerID), s.log)
	s.transport = t

	s.unsubs = append(s.unsubs,
		t.AddOpenListener(func() { s.onOpen(t) }),
		t.AddCloseListener(func() { s.onClose(t) }),
		t.AddMessageListener(func(msg any) { s.onMessage(t, msg) }),
	)
	s.mu.Unlock()

	if err := t.Connect(); err != nil {
		s.log.Warnf("initial connect failed: %v", err)
	}
}

// ChangeLocation tells the current room this player is leaving, then rebinds
// to the new location's room.
func (s *Session) ChangeLocation(newLoc model.GameLocation) {
	s.mu.Lock()
	if s.transport != nil {
		s.transport.Send(protocol.NewLocationChange(s.playerID, newLoc))
	}
	s.mu.Unlock()

	s.SetLocation(newLoc)
}

// Publish records the local player state and sends it, throttled to one
// update per interval.
func (s *Session) Publish(pos model.Position, frame int, moving bool, facing model.FacingDirection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = localState{position: pos, frame: frame, moving: moving, facing: facing}
	s.publishLocked(false)
}

// publishLocked sends the current local state unless the throttle window is
// still open. force bypasses the throttle (used once on connection open).
func (s *Session) publishLocked(force bool) {
	if s.transport == nil {
		return
	}
	now := s.now()
	if !force && s.hasSent && now.Sub(s.lastSend) < s.opts.UpdateThrottle {
		return
	}
	s.lastSend = now
	s.hasSent = true

	s.transport.Send(protocol.NewPlayerUpdate(model.PlayerState{
		PlayerID:        s.playerID,
		PlayerName:      s.opts.PlayerName,
		Position:        s.local.position,
		CurrentFrame:    s.local.frame,
		CurrentLocation: s.location,
		IsMoving:        s.local.moving,
		SpriteVariant:   s.opts.SpriteVariant,
		FacingDirection: s.local.facing,
	}))
}

// Close permanently releases the session's connection and listeners.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.status = Status{}
}

// teardownLocked releases the current transport. Stale listeners are both
// unsubscribed and guarded by transport identity checks, so a straggling
// callback from the old connection cannot touch the new session state.
func (s *Session) teardownLocked() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	if s.transport != nil {
		s.transport.Disconnect()
		s.transport = nil
	}
}

func (s *Session) onOpen(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return
	}
	s.status = Status{Connected: true}
	// Announce presence immediately rather than waiting out the throttle.
	s.publishLocked(true)
}

func (s *Session) onClose(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return
	}
	switch t.State() {
	case StateGaveUp:
		s.status = Status{Err: "connection lost"}
	default:
		s.status = Status{Connecting: true}
	}
}

func (s *Session) onMessage(t *Transport, msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return
	}

	switch m := msg.(type) {
	case protocol.PlayerList:
		// Snapshot replaces the whole roster. Never keep an entry for
		// ourselves; we are not our own remote player.
		s.others = make(map[string]model.PlayerState, len(m.Players))
		for _, p := range m.Players {
			if p.PlayerID == s.playerID {
				continue
			}
			s.others[p.PlayerID] = p
		}
	case protocol.PlayerJoined:
		if m.Player.PlayerID != s.playerID {
			s.others[m.Player.PlayerID] = m.Player
		}
	case protocol.PlayerUpdated:
		if m.Player.PlayerID != s.playerID {
			s.others[m.Player.PlayerID] = m.Player
		}
	case protocol.PlayerLeft:
		delete(s.others, m.PlayerID)
	case protocol.Error:
		s.log.Warnf("server error: %s", m.Message)
		s.status.Err = m.Message
	}
}
