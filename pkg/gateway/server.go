package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/pkg/store"
	"github.com/fieldops/fieldops/pkg/workflow"
)

// Server exposes the planning workflow over websocket: JSON-RPC methods
// for triggering, inspecting, and approving plans, plus plan-change
// events pushed to subscribed clients.
type Server struct {
	port     int
	server   *http.Server
	upgrader websocket.Upgrader

	clients     *ClientRegistry
	authHandler *AuthHandler
	broadcaster *EventBroadcaster
	methods     map[string]methodHandler

	store    *store.Store
	workflow *workflow.Service
	logger   zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	pumpCancel     func()
	pumpWG         sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Port         int
	SharedSecret string
	Store        *store.Store
	Workflow     *workflow.Service
	Logger       zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Workflow == nil {
		return nil, fmt.Errorf("workflow service is required")
	}

	clients := NewClientRegistry()
	s := &Server{
		port:        cfg.Port,
		clients:     clients,
		authHandler: NewAuthHandler(cfg.SharedSecret),
		broadcaster: NewEventBroadcaster(clients, cfg.Logger),
		store:       cfg.Store,
		workflow:    cfg.Workflow,
		logger:      cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.registerMethods()
	return s, nil
}

// Start begins serving and bridges plan changes onto the broadcaster.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	events, cancel := s.store.WatchPlans("", "")
	s.pumpCancel = cancel
	s.pumpWG.Add(1)
	go func() {
		defer s.pumpWG.Done()
		for ev := range events {
			s.broadcaster.BroadcastPlanEvent(ev)
		}
	}()

	s.logger.Info().Int("port", s.port).Msg("Starting gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")

	if s.pumpCancel != nil {
		s.pumpCancel()
		s.pumpCancel = nil
	}
	s.pumpWG.Wait()

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

// handleWebSocket upgrades a connection and starts the auth handshake.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   r.RemoteAddr,
	}
	s.clients.Add(client)

	s.logger.Info().Str("client_id", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.Remove(clientID)
		return
	}

	go s.handleClient(client)
}

func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}
	client.Challenge = challenge

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}

		if !client.Authenticated {
			s.handleAuth(client, message)
			continue
		}

		var req RPCRequest
		if err := json.Unmarshal(message, &req); err != nil {
			_ = client.WriteJSON(RPCResponse{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: ParseError, Message: "invalid JSON"},
			})
			continue
		}
		s.dispatchMethod(client, req)
	}
}

func (s *Server) handleAuth(client *Client, message []byte) {
	var resp AuthResponse
	if err := json.Unmarshal(message, &resp); err != nil || resp.Method != "auth.response" {
		_ = client.WriteJSON(AuthResult{Event: "auth.failure", Message: "Expected auth response"})
		return
	}

	result := s.authHandler.HandleAuthResponse(client, resp.Signature)
	_ = client.WriteJSON(result)

	if !result.Success && client.AuthAttempts >= 3 {
		client.Conn.Close()
	}
}

func (s *Server) dispatchMethod(client *Client, req RPCRequest) {
	handler, ok := s.methods[req.Method]
	if !ok {
		_ = client.WriteJSON(RPCResponse{
			ID:      req.ID,
			JSONRPC: "2.0",
			Error:   &RPCError{Code: MethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)},
		})
		return
	}

	result, rpcErr := handler(client, req.Params)
	_ = client.WriteJSON(RPCResponse{
		ID:      req.ID,
		JSONRPC: "2.0",
		Result:  result,
		Error:   rpcErr,
	})
}
