package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/rs/zerolog/log"
)

// Service is the battle gateway: WebSocket connections in, player events out.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

func NewService(config Config) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// Attach sets the command handler for client messages.
func (s *Service) Attach(d Dispatcher) {
	s.connectionManager.SetDispatcher(d)
}

// Notify delivers an event to a connected player.
func (s *Service) Notify(playerID string, event *events.Event) {
	s.connectionManager.Notify(playerID, event)
}

// Start runs the broadcast loop until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting battle gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("battle gateway service stopped")
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("battle gateway routes registered")
}
