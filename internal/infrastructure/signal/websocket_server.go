package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
	"telerelay/pkg/config"
	apperrors "telerelay/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // devices and the operator console connect from arbitrary origins
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HubConfig tunes the per-connection behaviour of the WebSocket hub.
type HubConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendQueueSize  int
	MaxMessageSize int64

	// Per-peer inbound limit. Zero MessagesPerSecond disables limiting.
	MessagesPerSecond float64
	Burst             int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendQueueSize:  256,
		MaxMessageSize: 64 * 1024,
	}
}

// HubConfigFrom maps the relay configuration onto the hub settings.
func HubConfigFrom(cfg *config.Config) HubConfig {
	hc := HubConfig{
		PingInterval:   cfg.Hub.PingInterval,
		PongTimeout:    cfg.Hub.PongTimeout,
		WriteTimeout:   cfg.Hub.WriteTimeout,
		SendQueueSize:  cfg.Hub.SendQueueSize,
		MaxMessageSize: cfg.Hub.MaxMessageSize,
	}
	if cfg.RateLimiting.Enabled {
		hc.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		hc.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	return hc
}

type outbound struct {
	messageType int
	data        []byte
}

// client is one live WebSocket peer. send is closed exactly once, under the
// server's write lock, after the client has left the connection map.
type client struct {
	id      domain.PeerID
	conn    *websocket.Conn
	send    chan outbound
	limiter *rate.Limiter
	done    chan struct{}
}

var (
	_ ports.WebSocketHandler = (*WebSocketServer)(nil)
	_ ports.MessageSender    = (*WebSocketServer)(nil)
)

type WebSocketServer struct {
	registry ports.PeerRegistry
	router   ports.RouterService

	clients map[domain.PeerID]*client
	mu      sync.RWMutex

	cfg     HubConfig
	metrics ports.RelayMetrics
	logger  *zap.SugaredLogger
}

// NewWebSocketServer creates the hub. The router is attached separately
// because it needs the hub as its MessageSender.
func NewWebSocketServer(registry ports.PeerRegistry, cfg HubConfig, metrics ports.RelayMetrics, logger *zap.SugaredLogger) *WebSocketServer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WebSocketServer{
		registry: registry,
		clients:  make(map[domain.PeerID]*client),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetRouter attaches the router that handles inbound messages.
func (s *WebSocketServer) SetRouter(router ports.RouterService) {
	s.router = router
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	peer := s.registry.Register(ctx, r.RemoteAddr)

	c := &client{
		id:   peer.ID,
		conn: conn,
		send: make(chan outbound, s.cfg.SendQueueSize),
		done: make(chan struct{}),
	}
	if s.cfg.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	s.mu.Lock()
	s.clients[peer.ID] = c
	s.mu.Unlock()
	s.metrics.SetConnectedPeers(s.registry.Count())

	s.logger.Infow("peer connected via WebSocket", "peer_id", peer.ID, "remote_addr", peer.RemoteAddr)

	go s.writePump(c)

	s.router.HandleConnect(ctx, peer)
	s.readPump(ctx, c)

	s.removeClient(peer.ID)
	if err := s.router.HandleDisconnect(ctx, peer.ID); err != nil {
		s.logger.Infow("error unregistering peer", "peer_id", peer.ID, "error", err)
	}
	s.metrics.SetConnectedPeers(s.registry.Count())

	<-c.done
	s.logger.Infow("peer disconnected", "peer_id", peer.ID)
}

func (s *WebSocketServer) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Infow("error reading message from peer", "peer_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if c.limiter != nil && !c.limiter.Allow() {
			s.metrics.RecordDropped("rate_limited")
			if messageType == websocket.TextMessage {
				s.SendText(c.id, domain.ReplyPrefix+apperrors.NewRateLimitError().Message)
			}
			continue
		}

		switch messageType {
		case websocket.TextMessage:
			err = s.router.HandleText(ctx, c.id, string(data))
		case websocket.BinaryMessage:
			err = s.router.HandleBinary(ctx, c.id, data)
		}
		if err != nil {
			// Routing errors were already replied to the sender.
			s.logger.Debugw("message not routed", "peer_id", c.id, "error", err)
		}
	}
}

// writePump owns all writes to the connection. It exits when the send queue
// is closed or a write fails, and closes the connection on the way out so
// the reader unblocks.
func (s *WebSocketServer) writePump(c *client) {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				s.logger.Infow("error writing to peer", "peer_id", c.id, "error", err)
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "peer_id", c.id, "error", err)
				return
			}
		}
	}
}

func (s *WebSocketServer) removeClient(id domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.clients[id]
	if !exists {
		return
	}
	delete(s.clients, id)
	close(c.send)
}

func (s *WebSocketServer) SendText(id domain.PeerID, text string) error {
	return s.enqueue(id, outbound{messageType: websocket.TextMessage, data: []byte(text)})
}

func (s *WebSocketServer) SendBinary(id domain.PeerID, payload []byte) error {
	return s.enqueue(id, outbound{messageType: websocket.BinaryMessage, data: payload})
}

// enqueue never blocks. A full queue drops the message for this recipient only.
func (s *WebSocketServer) enqueue(id domain.PeerID, msg outbound) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.clients[id]
	if !exists {
		return domain.ErrPeerNotFound
	}

	select {
	case c.send <- msg:
		return nil
	default:
		s.metrics.RecordDropped("send_queue_full")
		s.logger.Warnw("send queue full, dropping message", "peer_id", id, "bytes", len(msg.data))
		return domain.ErrSendQueueFull
	}
}

// Close disconnects every peer. Their handlers unregister them as usual.
func (s *WebSocketServer) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		c.conn.Close()
	}
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

func (s *WebSocketServer) IsPeerConnected(id domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.clients[id]
	return exists
}

type nopMetrics struct{}

func (nopMetrics) RecordCommand(string, string) {}

func (nopMetrics) RecordBroadcast(string, int, int) {}

func (nopMetrics) RecordDropped(string) {}

func (nopMetrics) SetConnectedPeers(int) {}
