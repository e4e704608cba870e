package server

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joehewett/eriswood/internal/model"
	"github.com/joehewett/eriswood/pkg/protocol"
)

// RoomOptions carries the eviction timing knobs. The threshold and sweep
// interval are independent settings, not derived from each other.
type RoomOptions struct {
	StaleThreshold time.Duration
	SweepInterval  time.Duration
}

func (o RoomOptions) withDefaults() RoomOptions {
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = 60 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	return o
}

// Room is the authority for one location: it owns the canonical roster and
// fans out changes to every attached connection. All roster mutation happens
// under r.mu, so handling within a room never interleaves. Rooms are
// independent; there is no cross-room state.
type Room struct {
	name    string
	opts    RoomOptions
	log     *zap.SugaredLogger
	metrics RoomMetrics

	// now is swappable so tests can age players without sleeping.
	now func() time.Time

	mu           sync.Mutex
	players      map[string]*model.PlayerState
	conns        map[string]outbound
	connToPlayer map[string]string
	lastSeen     map[string]time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
	stopOnce  sync.Once
}

func NewRoom(name string, opts RoomOptions, log *zap.SugaredLogger) *Room {
	return &Room{
		name:         name,
		opts:         opts.withDefaults(),
		log:          log,
		now:          time.Now,
		players:      make(map[string]*model.PlayerState),
		conns:        make(map[string]outbound),
		connToPlayer: make(map[string]string),
		lastSeen:     make(map[string]time.Time),
		sweepStop:    make(chan struct{}),
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) Metrics() *RoomMetrics { return &r.metrics }

// Attach registers a connection and sends it the current roster snapshot so
// it can render everyone already present.
func (r *Room) Attach(c outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	r.log.Infof("room %s: connection %s attached", r.name, c.ID())

	snapshot := make([]model.PlayerState, 0, len(r.players))
	for _, p := range r.players {
		snapshot = append(snapshot, *p)
	}
	r.sendTo(c, protocol.PlayerList{Type: protocol.TypePlayerList, Players: snapshot})
}

// Detach removes a connection and, if it owned a player, removes that player
// and tells everyone else.
func (r *Room) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)

	playerID, ok := r.connToPlayer[connID]
	if !ok {
		return
	}
	delete(r.connToPlayer, connID)
	delete(r.players, playerID)
	delete(r.lastSeen, playerID)
	r.metrics.IncDepartures()
	r.log.Infof("room %s: connection %s closed, player %s left", r.name, connID, playerID)

	r.broadcastExcept(connID, protocol.PlayerLeft{Type: protocol.TypePlayerLeft, PlayerID: playerID})
}

// HandleMessage dispatches one inbound frame from c. Malformed frames get an
// error reply to the sender only and never touch the roster.
func (r *Room) HandleMessage(c outbound, data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.metrics.IncMalformed()
		r.log.Warnf("room %s: bad message from %s: %v", r.name, c.ID(), err)
		r.sendTo(c, protocol.Error{Type: protocol.TypeError, Message: "invalid message format"})
		return
	}

	switch m := msg.(type) {
	case protocol.PlayerUpdate:
		r.handlePlayerUpdate(c, m)
	case protocol.LocationChange:
		r.handleLocationChange(c, m)
	case protocol.Heartbeat:
		r.handleHeartbeat(m)
	}
}

func (r *Room) handlePlayerUpdate(c outbound, msg protocol.PlayerUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state := &model.PlayerState{
		PlayerID:        msg.PlayerID,
		PlayerName:      msg.PlayerName,
		Position:        msg.Position,
		CurrentFrame:    msg.CurrentFrame,
		CurrentLocation: msg.CurrentLocation,
		IsMoving:        msg.IsMoving,
		SpriteVariant:   msg.SpriteVariant,
		FacingDirection: msg.FacingDirection,
		LastUpdate:      now.UnixMilli(),
		ConnectionID:    c.ID(),
	}

	_, known := r.players[msg.PlayerID]
	r.players[msg.PlayerID] = state
	r.lastSeen[msg.PlayerID] = now

	// Keep connection<->player bijective: if the player reconnected on a new
	// connection, the old connection no longer owns it.
	for connID, pid := range r.connToPlayer {
		if pid == msg.PlayerID && connID != c.ID() {
			delete(r.connToPlayer, connID)
		}
	}
	r.connToPlayer[c.ID()] = msg.PlayerID

	if known {
		r.metrics.IncUpdates()
		r.broadcastExcept(c.ID(), protocol.PlayerUpdated{Type: protocol.TypePlayerUpdated, Player: *state})
	} else {
		r.metrics.IncJoins()
		r.log.Infof("room %s: player %s joined", r.name, msg.PlayerID)
		r.broadcastExcept(c.ID(), protocol.PlayerJoined{Type: protocol.TypePlayerJoined, Player: *state})
	}
}

// handleLocationChange drops the player from this room; it will re-establish
// presence in the room for its new location.
func (r *Room) handleLocationChange(c outbound, msg protocol.LocationChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[msg.PlayerID]; ok {
		delete(r.connToPlayer, p.ConnectionID)
	}
	delete(r.connToPlayer, c.ID())
	delete(r.players, msg.PlayerID)
	delete(r.lastSeen, msg.PlayerID)
	r.metrics.IncDepartures()
	r.log.Infof("room %s: player %s moved to %s", r.name, msg.PlayerID, msg.NewLocation)

	r.broadcastExcept(c.ID(), protocol.PlayerLeft{Type: protocol.TypePlayerLeft, PlayerID: msg.PlayerID})
}

// handleHeartbeat refreshes liveness only; it never creates roster entries
// and nothing is broadcast.
func (r *Room) handleHeartbeat(msg protocol.Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.IncHeartbeats()
	r.lastSeen[msg.PlayerID] = r.now()
}

// OccupantCount reports the current roster size.
func (r *Room) OccupantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Sweep evicts every player whose last update or heartbeat is older than the
// staleness threshold. It is the backstop for connections that vanished
// without a close frame, and is idempotent: an already-evicted player
// produces no second player_left.
func (r *Room) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for playerID, seen := range r.lastSeen {
		if now.Sub(seen) <= r.opts.StaleThreshold {
			continue
		}
		delete(r.lastSeen, playerID)

		p, ok := r.players[playerID]
		if !ok {
			continue
		}
		delete(r.players, playerID)
		delete(r.connToPlayer, p.ConnectionID)
		r.metrics.IncEvictions()
		r.log.Infof("room %s: evicting stale player %s", r.name, playerID)

		r.broadcastExcept("", protocol.PlayerLeft{Type: protocol.TypePlayerLeft, PlayerID: playerID})
	}
}

// StartSweeper runs the periodic sweep until StopSweeper is called.
func (r *Room) StartSweeper() {
	r.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(r.opts.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.Sweep()
				case <-r.sweepStop:
					return
				}
			}
		}()
	})
}

func (r *Room) StopSweeper() {
	r.stopOnce.Do(func() { close(r.sweepStop) })
}

// sendTo marshals and enqueues for a single connection. Callers hold r.mu.
func (r *Room) sendTo(c outbound, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Errorf("room %s: marshal: %v", r.name, err)
		return
	}
	c.Enqueue(data)
}

// broadcastExcept fans a message out to every connection except the named
// one. Pass "" to reach everyone. Callers hold r.mu.
func (r *Room) broadcastExcept(exceptConnID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Errorf("room %s: marshal: %v", r.name, err)
		return
	}
	r.metrics.IncBroadcasts()
	for id, c := range r.conns {
		if id == exceptConnID {
			continue
		}
		c.Enqueue(data)
	}
}
