package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler serves the battle socket and the stats endpoint
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleBattleConnection upgrades the request. Players are anonymous: each
// connection is a new player.
func (h *WebSocketHandler) HandleBattleConnection(w http.ResponseWriter, r *http.Request) {
	if _, err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// the upgrader has already written an HTTP error
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
	}
}

// StatsResponse is the body of GET /battle/stats.
type StatsResponse struct {
	ActiveRooms     int   `json:"active_rooms"`
	WaitingPlayers  int   `json:"waiting_players"`
	Judging         int   `json:"judging"`
	Connections     int   `json:"connections"`
	BattlesFinished int64 `json:"battles_finished"`
}

func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Connections: h.connectionManager.ConnectionCount()}
	if d := h.connectionManager.dispatcher; d != nil {
		s := d.Stats()
		resp.ActiveRooms = s.ActiveRooms
		resp.WaitingPlayers = s.WaitingPlayers
		resp.Judging = s.Judging
		resp.BattlesFinished = s.BattlesFinished
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to write stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/battle", h.HandleBattleConnection)
	mux.HandleFunc("GET /battle/stats", h.HandleStats)
}
