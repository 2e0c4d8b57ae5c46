package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/mcdev12/dsarena/go/internal/battle/orchestrator"
	"github.com/rs/zerolog/log"
)

// Dispatcher executes client commands. The orchestrator implements it.
type Dispatcher interface {
	Join(ctx context.Context, playerID, language string) error
	Leave(playerID string) bool
	Submit(ctx context.Context, roomID, playerID, code string) error
	Disconnect(playerID string)
	Stats() orchestrator.Stats
}

// ConnectionManager manages WebSocket connections, one per player
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	dispatcher Dispatcher

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a player. The player id is
// minted per connection.
type Connection struct {
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an event addressed to one player
type BroadcastMessage struct {
	PlayerID string
	Event    *events.Event
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  128 << 10, // room for a full submission plus envelope
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetDispatcher wires the command handler. It must be called before serving.
func (cm *ConnectionManager) SetDispatcher(d Dispatcher) {
	cm.dispatcher = d
}

// Start delivers queued events until ctx is done, then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Notify queues an event for one player. Events for players without a
// connection are dropped.
func (cm *ConnectionManager) Notify(playerID string, event *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{PlayerID: playerID, Event: event}:
	default:
		log.Warn().
			Str("player_id", playerID).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and greets the
// player with its id.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		PlayerID:    uuid.NewString(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().Str("player_id", connection.PlayerID).Msg("WebSocket connection established")

	cm.Notify(connection.PlayerID, events.MustNew(events.EventTypeConnected, "", events.ConnectedPayload{
		YourID: connection.PlayerID,
	}))
	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn.PlayerID] = conn

	log.Debug().
		Str("player_id", conn.PlayerID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and tells the dispatcher the player left.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	conn.closeOnce.Do(func() {
		cm.mu.Lock()
		if cm.connections[conn.PlayerID] == conn {
			delete(cm.connections, conn.PlayerID)
		}
		close(conn.Send)
		cm.mu.Unlock()

		conn.cancel()
		if cm.dispatcher != nil {
			cm.dispatcher.Disconnect(conn.PlayerID)
		}

		log.Info().Str("player_id", conn.PlayerID).Msg("connection unregistered")
	})
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		cm.unregisterConnection(c)
		c.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Send under the read lock so unregisterConnection cannot close Send mid-write.
	cm.mu.RLock()
	conn, ok := cm.connections[message.PlayerID]
	if !ok {
		cm.mu.RUnlock()
		log.Debug().
			Str("player_id", message.PlayerID).
			Str("event_type", string(message.Event.Type)).
			Msg("no connection for player, event dropped")
		return
	}
	var full bool
	select {
	case conn.Send <- data:
	default:
		full = true
	}
	cm.mu.RUnlock()

	if full {
		log.Warn().Str("player_id", conn.PlayerID).Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// ConnectionCount returns the number of open connections.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("player_id", c.PlayerID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("player_id", c.PlayerID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("player_id", c.PlayerID).Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage routes one client command to the dispatcher. Failures are
// reported back to the sender as error events.
func (c *Connection) handleClientMessage(message []byte) {
	var event events.Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.sendError("malformed message")
		return
	}

	payload, err := events.ParseEventPayload(&event)
	if err != nil {
		log.Debug().Err(err).Str("player_id", c.PlayerID).Str("event_type", string(event.Type)).Msg("rejected client message")
		c.sendError(fmt.Sprintf("unsupported message %q", event.Type))
		return
	}

	d := c.Manager.dispatcher
	if d == nil {
		c.sendError("service unavailable")
		return
	}

	switch p := payload.(type) {
	case events.JoinBattlePayload:
		err = d.Join(c.ctx, c.PlayerID, p.Language)
	case events.SubmitCodePayload:
		err = d.Submit(c.ctx, p.Room, c.PlayerID, p.Code)
	default:
		if event.Type == events.EventTypeLeaveQueue {
			d.Leave(c.PlayerID)
			return
		}
		c.sendError(fmt.Sprintf("unsupported message %q", event.Type))
		return
	}

	if err != nil {
		log.Info().Err(err).Str("player_id", c.PlayerID).Str("event_type", string(event.Type)).Msg("client command failed")
		c.sendError(clientMessage(err))
	}
}

func (c *Connection) sendError(msg string) {
	c.Manager.Notify(c.PlayerID, events.MustNew(events.EventTypeError, "", events.ErrorPayload{Message: msg}))
}

// clientMessage keeps internal error detail out of client-facing messages.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyInBattle):
		return "already in a battle"
	case errors.Is(err, orchestrator.ErrCodeTooLarge):
		return "submission too large"
	case errors.Is(err, orchestrator.ErrUnsupportedLanguage):
		return "language not supported"
	default:
		return err.Error()
	}
}
