package server

import (
	"sync"

	"go.uber.org/zap"
)

// Manager owns the rooms. Rooms are keyed by name (one per game location) and
// live for the life of the process; the location enum bounds how many exist.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	opts  RoomOptions
	log   *zap.SugaredLogger
}

func NewManager(opts RoomOptions, log *zap.SugaredLogger) *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
		opts:  opts,
		log:   log,
	}
}

// GetOrCreate returns the room for name, creating it and starting its stale
// sweeper on first use.
func (m *Manager) GetOrCreate(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[name]
	if !ok {
		r = NewRoom(name, m.opts, m.log)
		r.StartSweeper()
		m.rooms[name] = r
	}
	return r
}

// Get returns an existing room without creating one.
func (m *Manager) Get(name string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	return r, ok
}

// Close stops every room's sweeper. Used on server shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.StopSweeper()
	}
}
