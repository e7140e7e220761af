package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRoomNameLength = 64

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Browser clients are served from other origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter wires the signaling websocket, the room API, health and metrics.
func NewRouter(log *slog.Logger, hub *Hub, metrics *Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /rooms", createRoomHandler(log, hub))
	mux.HandleFunc("GET /rooms/{id}", getRoomHandler(hub))
	mux.HandleFunc("GET /ws/signaling/{room}/", ServeWs(log, hub))

	return corsMiddleware(mux)
}

// corsMiddleware allows the room API to be called from browsers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func createRoomHandler(log *slog.Logger, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		name := strings.TrimSpace(body.Name)
		if len(name) > maxRoomNameLength {
			writeError(w, http.StatusBadRequest, "room name too long")
			return
		}

		room, err := hub.CreateRoom(name)
		if err != nil {
			log.Error("create room failed", slog.Any("error", err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, room)
	}
}

func getRoomHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, found, err := hub.GetRoom(r.PathValue("id"))
		switch {
		case err != nil:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case !found:
			writeError(w, http.StatusNotFound, "room not found")
		default:
			writeJSON(w, http.StatusOK, room)
		}
	}
}

// ServeWs upgrades a connection into a client of the room named in the path.
func ServeWs(log *slog.Logger, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("room")
		if roomID == "" {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", slog.Any("error", err))
			return
		}

		client := newClient(hub, conn, roomID)
		if !hub.register(client) {
			conn.Close()
			return
		}

		// The pumps own the connection from here on
		go client.WritePump()
		go client.ReadPump()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
