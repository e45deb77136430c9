package preview

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub는 WebSocket 기반 프리뷰 푸시 허브입니다. 디바이스의 프레임 콜백이
// Broadcast로 전달한 프레임을 해당 디바이스를 구독하는 모든 클라이언트에게
// 바이너리 메시지로 전달합니다.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients map[*Client]bool
	mutex   sync.RWMutex
}

// Client는 WebSocket 클라이언트를 나타냅니다
type Client struct {
	id       string
	deviceID string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	logger   *zap.Logger
}

// NewHub는 새로운 프리뷰 허브를 생성합니다
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 개발 모드: 모든 origin 허용
			},
		},
		clients: make(map[*Client]bool),
	}
}

// HandleWebSocket은 deviceID의 프리뷰를 구독하는 WebSocket 연결을 처리합니다
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, deviceID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.Error(err),
		)
		return
	}

	clientID := uuid.NewString()
	client := &Client{
		id:       clientID,
		deviceID: deviceID,
		conn:     conn,
		send:     make(chan []byte, 8),
		hub:      h,
		logger: h.logger.With(
			zap.String("client_id", clientID),
			zap.String("device_id", deviceID),
		),
	}

	h.registerClient(client)

	// 읽기/쓰기 고루틴 시작
	go client.writePump()
	go client.readPump()

	client.logger.Info("Preview client connected",
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// Broadcast는 디바이스의 프레임을 구독 중인 모든 클라이언트에게 전달합니다.
// frame은 호출자가 재사용하는 버퍼이므로 한 번 복사한 뒤 전달합니다.
func (h *Hub) Broadcast(deviceID string, frame []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var shared []byte
	for client := range h.clients {
		if client.deviceID != deviceID {
			continue
		}

		if shared == nil {
			shared = make([]byte, len(frame))
			copy(shared, frame)
		}

		select {
		case client.send <- shared:
		default:
			// 클라이언트 버퍼 가득 참, 프레임 드롭 (블로킹 방지)
			client.logger.Debug("Client buffer full, dropping frame")
		}
	}
}

// registerClient는 클라이언트를 등록합니다
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[client] = true

	h.logger.Info("Client registered",
		zap.String("client_id", client.id),
		zap.Int("total_clients", len(h.clients)),
	)
}

// unregisterClient는 클라이언트를 등록 해제합니다
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.clients[client]; exists {
		delete(h.clients, client)
		close(client.send)

		h.logger.Info("Client unregistered",
			zap.String("client_id", client.id),
			zap.Int("total_clients", len(h.clients)),
		)
	}
}

// GetClientCount는 연결된 클라이언트 수를 반환합니다
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close는 모든 클라이언트 연결을 종료합니다
func (h *Hub) Close() {
	h.logger.Info("Closing preview hub")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.conn.Close()
		delete(h.clients, client)
	}
}

// readPump은 WebSocket에서 메시지를 읽습니다. 프리뷰는 단방향이므로 수신
// 메시지는 버리고 연결 종료 감지에만 사용합니다.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}

// writePump은 프레임을 WebSocket으로 씁니다
func (c *Client) writePump() {
	defer c.conn.Close()

	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			c.logger.Error("Failed to write frame", zap.Error(err))
			break
		}
	}
}

// GetID는 클라이언트 ID를 반환합니다
func (c *Client) GetID() string {
	return c.id
}
