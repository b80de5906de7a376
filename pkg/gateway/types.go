package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	JSONRPC string                 `json:"jsonrpc"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
)

// EventMessage is a server-initiated event pushed to subscribed clients.
type EventMessage struct {
	Type      string      `json:"type,omitempty"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client is one connected websocket consumer. UserID and Date hold the
// plan-change filter set by plan.subscribe; an unsubscribed client
// receives no plan events.
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	AuthAttempts  int
	ConnectedAt   time.Time
	IPAddress     string

	mu         sync.Mutex
	Subscribed bool
	UserID     string
	Date       string
}

// Write serializes concurrent writes to the underlying connection.
func (c *Client) Write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// WriteJSON serializes concurrent JSON writes.
func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Subscribe sets the plan-change filter.
func (c *Client) Subscribe(userID, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscribed = true
	c.UserID = userID
	c.Date = date
}

// Unsubscribe clears the plan-change filter.
func (c *Client) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscribed = false
	c.UserID = ""
	c.Date = ""
}

// Wants reports whether a plan change for (userID, date) passes the
// client's filter.
func (c *Client) Wants(userID, date string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Subscribed {
		return false
	}
	if c.UserID != "" && c.UserID != userID {
		return false
	}
	if c.Date != "" && c.Date != date {
		return false
	}
	return true
}
