// Package gateway exposes the conversational shopping assistant over
// websocket and HTTP. Each websocket connection owns one conversation;
// disconnecting aborts any in-flight turn and discards the history.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/shreyanshjain05/sparkthon/internal/observability"
	"github.com/shreyanshjain05/sparkthon/pkg/agent"
	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
	"github.com/shreyanshjain05/sparkthon/pkg/laneq"
	"github.com/shreyanshjain05/sparkthon/pkg/store"
)

const searchResultLimit = 10

// Server is the gateway server.
type Server struct {
	host          string
	port          int
	defaultUserID string

	server   *http.Server
	upgrader websocket.Upgrader

	runner        *agent.Runner
	conversations *conversation.Store
	queue         *laneq.Queue
	store         *store.Store
	logger        zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host          string
	Port          int
	DefaultUserID string
	Runner        *agent.Runner
	Conversations *conversation.Store
	Queue         *laneq.Queue
	Store         *store.Store
	Logger        zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Conversations == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("lane queue is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("product store is required")
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "user123"
	}

	return &Server{
		host:          cfg.Host,
		port:          cfg.Port,
		defaultUserID: cfg.DefaultUserID,
		runner:        cfg.Runner,
		conversations: cfg.Conversations,
		queue:         cfg.Queue,
		store:         cfg.Store,
		logger:        cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start starts the gateway server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	// Start server in goroutine so it doesn't block
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	// Give the server a moment to start
	time.Sleep(50 * time.Millisecond)

	return nil
}

// Stop gracefully stops the gateway server. In-flight requests and queued
// turns are drained before the listener closes.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if !s.queue.WaitForActive(10 * time.Second) {
		s.logger.Warn().Msg("Queued turns still active at shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// chatMessage is the inbound websocket frame.
type chatMessage struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// chatReply is the outbound websocket frame and HTTP chat response.
type chatReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
	Rounds         int    `json:"rounds,omitempty"`
	Error          string `json:"error,omitempty"`
}

// handleWebSocket upgrades the connection and binds it to a fresh
// conversation.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	connID, _ := gonanoid.New()
	state := s.conversations.Get(connID)
	state.SetUserID(s.defaultUserID)

	s.logger.Info().
		Str("connId", connID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.handleClient(connID, conn, state)
}

// wsClient serializes writes to a connection; turns complete on their own
// goroutines.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleClient pumps messages off the socket until it closes. Turns run off
// the read loop so a disconnect is observed immediately and cancels the
// in-flight turn through the connection context.
func (s *Server) handleClient(connID string, conn *websocket.Conn, state *conversation.State) {
	connCtx, cancel := context.WithCancel(context.Background())
	client := &wsClient{conn: conn}
	var turns sync.WaitGroup

	defer func() {
		cancel()
		s.runner.Abort(connID)
		conn.Close()
		turns.Wait()
		s.conversations.Remove(connID)
		s.logger.Info().Str("connId", connID).Msg("Client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("connId", connID).Msg("WebSocket error")
			}
			return
		}

		var msg chatMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Message == "" {
			if writeErr := client.writeJSON(chatReply{Error: "expected a JSON frame with a non-empty message field"}); writeErr != nil {
				return
			}
			continue
		}
		if msg.UserID != "" {
			state.SetUserID(msg.UserID)
		}

		s.inFlightReqs.Add(1)
		turns.Add(1)
		go func(text string) {
			defer s.inFlightReqs.Done()
			defer turns.Done()

			reply := s.runTurn(connCtx, state, text)
			if err := client.writeJSON(reply); err != nil {
				s.logger.Debug().Err(err).Str("connId", connID).Msg("Failed to send response")
			}
		}(msg.Message)
	}
}

func (s *Server) runTurn(ctx context.Context, state *conversation.State, message string) chatReply {
	result, err := s.runner.RunTurn(ctx, state, message)
	if err != nil {
		s.logger.Error().Err(err).Str("key", state.Key()).Msg("Turn failed")
		return chatReply{Error: "I hit a problem processing that. Please try again."}
	}
	if result.Aborted {
		return chatReply{Error: "The request was cancelled."}
	}

	return chatReply{
		Response:       result.Reply,
		ConversationID: state.Key(),
		Rounds:         result.Rounds,
	}
}

// chatRequest is the HTTP chat request body.
type chatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// handleChat is the single-shot HTTP counterpart of the websocket flow.
// Passing conversation_id continues an existing conversation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "expected a JSON body with a non-empty message field", http.StatusBadRequest)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID, _ = gonanoid.New()
	}

	state := s.conversations.Get(conversationID)
	if state.Context().UserID == "" {
		state.SetUserID(s.defaultUserID)
	}
	if req.UserID != "" {
		state.SetUserID(req.UserID)
	}

	s.inFlightReqs.Add(1)
	reply := s.runTurn(r.Context(), state, req.Message)
	s.inFlightReqs.Done()
	if reply.ConversationID == "" {
		reply.ConversationID = conversationID
	}

	w.Header().Set("Content-Type", "application/json")
	if reply.Error != "" {
		w.WriteHeader(http.StatusInternalServerError)
	}
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode chat response")
	}
}

// productSummary is the search endpoint's product shape.
type productSummary struct {
	ID            int64   `json:"id"`
	SKU           string  `json:"sku"`
	Name          string  `json:"name"`
	Brand         string  `json:"brand"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	InStock       bool    `json:"in_stock"`
	StockQuantity int     `json:"stock_quantity"`
}

// handleSearch is the free-text product search endpoint.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := searchResultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < searchResultLimit {
			limit = n
		}
	}

	products, err := s.store.SearchProducts(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Product search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	summaries := make([]productSummary, 0, len(products))
	for i := range products {
		p := &products[i]
		summaries = append(summaries, productSummary{
			ID:            p.ID,
			SKU:           p.SKU,
			Name:          p.ItemName,
			Brand:         p.Brand,
			Price:         p.Price,
			Category:      p.Category,
			InStock:       p.InStock(),
			StockQuantity: p.StockQuantity,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"products": summaries,
		"count":    len(summaries),
	}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode search response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
