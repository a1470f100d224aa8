// Package gateway exposes the engine to external consumers: a WebSocket
// endpoint that broadcasts engine events to connected clients and an
// optional Prometheus metrics endpoint on the same listener.
//
// Clients are view-only. Inbound WebSocket messages are read and discarded;
// every client receives the same stream of event envelopes. A client that
// cannot keep up loses messages rather than slowing the engine down.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deadcoast/sprawl-engine/errors"
	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/metric"
)

// Connection timing constants.
const (
	// writeWait bounds a single write to a client.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingInterval must be shorter than pongWait.
	pingInterval = (pongWait * 9) / 10
	// maxInboundBytes caps inbound frames; clients only send control chatter.
	maxInboundBytes = 1024
)

// DefaultSendQueue is the per-client outbound queue capacity.
const DefaultSendQueue = 64

// Config holds the gateway's listener settings.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8090" or "127.0.0.1:0".
	Addr string
	// Path is the WebSocket endpoint path, e.g. "/ws".
	Path string
	// SendQueue is the per-client outbound queue capacity. Zero means
	// DefaultSendQueue.
	SendQueue int
}

// Server is the WebSocket gateway. Construct it with NewServer and drive
// it through Initialize/Start/Stop.
type Server struct {
	cfg     Config
	bus     *event.Bus
	logger  *slog.Logger
	metrics *serverMetrics
	promReg *metric.MetricsRegistry

	upgrader websocket.Upgrader

	mu          sync.Mutex
	running     bool
	listener    net.Listener
	server      *http.Server
	clients     map[*client]struct{}
	unsubscribe func()
	shutdown    chan struct{}
	wg          *sync.WaitGroup
}

// client is one connected WebSocket consumer with its outbound queue.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewServer creates a gateway that broadcasts events published on bus. A
// nil metrics registry disables both the gateway's own metrics and the
// /metrics endpoint.
func NewServer(cfg Config, bus *event.Bus, logger *slog.Logger, metricsRegistry *metric.MetricsRegistry) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}

	metrics, err := newServerMetrics(metricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize gateway metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	return &Server{
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		promReg: metricsRegistry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client is served from a different origin during
			// development; tighten this before exposing publicly.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Initialize validates the gateway configuration.
func (s *Server) Initialize() error {
	if s.cfg.Addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Initialize", "listen address cannot be empty")
	}
	if !strings.HasPrefix(s.cfg.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Initialize",
			fmt.Sprintf("endpoint path %q must start with /", s.cfg.Path))
	}
	if s.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Initialize", "event bus wiring")
	}
	return nil
}

// Start opens the listener, begins serving WebSocket upgrades and
// subscribes to the event bus. The actual bound address is available from
// Addr afterwards.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "state check")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Server", "Start", "context check")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", s.cfg.Addr))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	if s.promReg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.promReg.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.shutdown = make(chan struct{})
	s.wg = &sync.WaitGroup{}
	s.running = true

	s.wg.Add(1)
	go func(server *http.Server, wg *sync.WaitGroup) {
		defer wg.Done()
		s.serve(server, listener)
	}(s.server, s.wg)

	s.unsubscribe = s.bus.Subscribe(s.broadcast)

	s.logger.Info("Gateway started",
		"addr", listener.Addr().String(),
		"path", s.cfg.Path,
		"metrics", s.promReg != nil)
	return nil
}

// Addr returns the bound listener address, or the configured address when
// the gateway is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stop unsubscribes from the bus, shuts the HTTP server down and closes
// every client connection.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Server", "Stop", "state check")
	}
	s.running = false

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	close(s.shutdown)

	server := s.server
	wg := s.wg
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", "error", err)
	}

	s.closeAllClients()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("Gateway goroutines did not exit before timeout", "timeout", timeout)
	}

	s.logger.Info("Gateway stopped")
	return nil
}

func (s *Server) serve(server *http.Server, listener net.Listener) {
	err := server.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error("Gateway HTTP server failed", "error", err)
	}
}

// handleWebSocket upgrades a connection and registers the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.metrics.recordError(err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, s.cfg.SendQueue),
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	wg := s.wg
	shutdown := s.shutdown
	s.mu.Unlock()

	s.metrics.recordConnect(count)
	s.logger.Debug("Client connected", "remote", r.RemoteAddr, "clients", count)

	wg.Add(2)
	go func() { defer wg.Done(); s.writePump(c, shutdown) }()
	go func() { defer wg.Done(); s.readPump(c) }()
}

// broadcast wraps an event in the wire envelope and enqueues it to every
// connected client. A full client queue drops the message for that client.
func (s *Server) broadcast(ev event.Event) {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to marshal event payload", "kind", ev.Kind(), "error", err)
		return
	}
	data, err := json.Marshal(event.Envelope{
		Kind:      ev.Kind(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Error("Failed to marshal event envelope", "kind", ev.Kind(), "error", err)
		return
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			s.metrics.recordDropped()
			s.logger.Debug("Client send queue full, message dropped", "kind", ev.Kind())
		}
	}

	s.metrics.recordBroadcast(string(ev.Kind()), time.Since(start))
}

// writePump drains the client's outbound queue and keeps the connection
// alive with pings.
func (s *Server) writePump(c *client, shutdown <-chan struct{}) {
	defer s.dropClient(c)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-shutdown:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// readPump discards inbound traffic and detects the client going away.
func (s *Server) readPump(c *client) {
	defer s.dropClient(c)

	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// dropClient removes a client exactly once and closes its connection.
func (s *Server) dropClient(c *client) {
	c.closeOnce.Do(func() {
		s.mu.Lock()
		delete(s.clients, c)
		count := len(s.clients)
		s.mu.Unlock()

		_ = c.conn.Close()
		s.metrics.recordDisconnect(count)
		s.logger.Debug("Client disconnected", "clients", count)
	})
}

// closeAllClients force-closes every connection so the pumps exit.
func (s *Server) closeAllClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.dropClient(c)
	}
}
