package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The game is served from a different origin than the presence server.
		return true
	},
}

// NewHandler builds the HTTP surface: websocket attach and health query on
// /parties/{room}, plus /healthz and per-room /metrics.
func NewHandler(m *Manager, log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()

	r.Get("/parties/{room}", func(w http.ResponseWriter, req *http.Request) {
		roomName := chi.URLParam(req, "room")

		if websocket.IsWebSocketUpgrade(req) {
			serveWS(m, roomName, log, w, req)
			return
		}

		// Plain GET is the synchronous health/status query.
		room := m.GetOrCreate(roomName)
		respondJSON(w, http.StatusOK, map[string]any{
			"room":    room.Name(),
			"players": room.OccupantCount(),
			"status":  "healthy",
		})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		roomName := req.URL.Query().Get("room")
		room, ok := m.Get(roomName)
		if !ok {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"room":    room.Name(),
			"metrics": room.Metrics().Snapshot(),
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func serveWS(m *Manager, roomName string, log *zap.SugaredLogger, w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warnf("upgrade failed for room %s: %v", roomName, err)
		return
	}

	room := m.GetOrCreate(roomName)
	conn := newWSConn(uuid.NewString(), ws, log)
	room.Attach(conn)

	go conn.writePump()
	go conn.readPump(room)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
