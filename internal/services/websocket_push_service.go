package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware
		return true
	},
}

// Connection one websocket watching one private send
type Connection struct {
	ID        string          `json:"id"`
	RequestID string          `json:"request_id"`
	Conn      *websocket.Conn `json:"-"`
	Send      chan []byte     `json:"-"`
	LastPing  time.Time       `json:"last_ping"`
}

// PushMessage base structure
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	RequestID string      `json:"request_id"`
	Data      interface{} `json:"data"`
}

// StageUpdateData payload of stage_update
type StageUpdateData struct {
	Event       *models.StageEvent `json:"event"`
	UserMessage string             `json:"user_message"`
	Progress    int                `json:"progress"`
}

// User-friendly stage message mapping
var stageMessages = map[models.Stage]struct {
	Message  string
	Progress int
}{
	models.StageValidating:         {"🔎 Checking your request...", 5},
	models.StageDepositSubmitting:  {"💰 Submitting deposit to the privacy pool...", 20},
	models.StageSettling:           {"⏳ Deposit submitted, waiting for confirmation...", 40},
	models.StageWithdrawPreparing:  {"⚡ Generating private withdrawal proof...", 60},
	models.StageWithdrawSubmitting: {"📤 Submitting private withdrawal...", 85},
	models.StageCompleted:          {"🎉 Private send completed", 100},
	models.StageFailed:             {"❌ Private send failed", 0},
}

// WebSocketPushService pushes stage events to clients watching a request
type WebSocketPushService struct {
	connections  map[string]*Connection   // key: connectionID
	requestConns map[string][]*Connection // key: requestID
	hub          chan PushMessage
	register     chan *Connection
	unregister   chan *Connection
	done         chan struct{}
	stopOnce     sync.Once
	mutex        sync.RWMutex
	logger       *logrus.Logger
}

// NewWebSocketPushService creates the service and starts its loop
func NewWebSocketPushService(logger *logrus.Logger) *WebSocketPushService {
	service := &WebSocketPushService{
		connections:  make(map[string]*Connection),
		requestConns: make(map[string][]*Connection),
		hub:          make(chan PushMessage, 256),
		register:     make(chan *Connection),
		unregister:   make(chan *Connection),
		done:         make(chan struct{}),
		logger:       logger,
	}

	go service.run()
	return service
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)

		case conn := <-s.unregister:
			s.handleUnregister(conn)

		case message := <-s.hub:
			s.handleBroadcast(message)

		case <-s.done:
			s.closeAll()
			return
		}
	}
}

// Stop closes every connection and ends the loop
func (s *WebSocketPushService) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// OnStage StageObserver; never blocks the pipeline
func (s *WebSocketPushService) OnStage(_ context.Context, event *models.StageEvent) {
	info := stageMessages[event.Stage]
	message := PushMessage{
		Type:      "stage_update",
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: uuid.NewString(),
		RequestID: event.RequestID,
		Data: StageUpdateData{
			Event:       event,
			UserMessage: info.Message,
			Progress:    info.Progress,
		},
	}

	select {
	case s.hub <- message:
	case <-s.done:
	default:
		s.logger.WithField("request_id", event.RequestID).Warn("⚠️ [WebSocketpush] Hub full, stage update dropped")
	}
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	s.requestConns[conn.RequestID] = append(s.requestConns[conn.RequestID], conn)
	metrics.WebSocketConnections.Inc()

	s.logger.Infof("📱 WebSocket connection registered: request=%s, connID=%s", conn.RequestID, conn.ID)
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.connections[conn.ID]; !exists {
		return
	}
	delete(s.connections, conn.ID)

	conns := s.requestConns[conn.RequestID]
	for i, c := range conns {
		if c.ID == conn.ID {
			s.requestConns[conn.RequestID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(s.requestConns[conn.RequestID]) == 0 {
		delete(s.requestConns, conn.RequestID)
	}

	close(conn.Send)
	metrics.WebSocketConnections.Dec()
	s.logger.Infof("📱 WebSocket connection unregistered: request=%s, connID=%s", conn.RequestID, conn.ID)
}

func (s *WebSocketPushService) closeAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, conn := range s.connections {
		close(conn.Send)
		delete(s.connections, id)
		metrics.WebSocketConnections.Dec()
	}
	s.requestConns = make(map[string][]*Connection)
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	conns, exists := s.requestConns[message.RequestID]
	if !exists {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Errorf("❌ Failed to marshal message: %v", err)
		return
	}

	sent := 0
	for _, conn := range conns {
		select {
		case conn.Send <- data:
			sent++
		default:
			s.logger.Warnf("⚠️ [WebSocketpush] Failed to send to connection: %s (channel full)", conn.ID)
		}
	}

	s.logger.Debugf("📤 [WebSocketpush] %s delivered to %d/%d connections, request=%s",
		message.Type, sent, len(conns), message.RequestID)
}

// HandleWebSocket upgrades the request and streams stage updates for requestID.
// snapshot, when non-nil, is sent first as a status_sync message.
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, requestID string, snapshot interface{}) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	connection := &Connection{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		LastPing:  time.Now(),
	}

	if snapshot != nil {
		if data, err := json.Marshal(PushMessage{
			Type:      "status_sync",
			Timestamp: time.Now().Format(time.RFC3339),
			MessageID: uuid.NewString(),
			RequestID: requestID,
			Data:      snapshot,
		}); err == nil {
			connection.Send <- data
		}
	}

	select {
	case s.register <- connection:
	case <-s.done:
		conn.Close()
		return
	}

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Errorf("❌ Write message failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		select {
		case s.unregister <- conn:
		case <-s.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Errorf("❌ WebSocket read error: %v", err)
			}
			break
		}
	}
}

// GetActiveConnections number of open connections
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// GetRequestConnections connections watching requestID
func (s *WebSocketPushService) GetRequestConnections(requestID string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.requestConns[requestID])
}
