package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/pkg/store"
)

// EventBroadcaster delivers server events to connected clients. Plan
// changes go only to clients whose subscription filter matches; plain
// broadcasts reach every authenticated client.
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to all authenticated clients
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	msg := b.message(event, data)
	b.deliver(msg, b.clients.GetAuthenticatedClients())
}

// BroadcastPlanEvent fans a plan change out to the clients subscribed to
// the plan's user and date.
func (b *EventBroadcaster) BroadcastPlanEvent(ev store.PlanEvent) {
	if ev.Plan == nil {
		return
	}

	var targets []*Client
	for _, client := range b.clients.GetAuthenticatedClients() {
		if client.Wants(ev.Plan.UserID, ev.Plan.Date) {
			targets = append(targets, client)
		}
	}
	if len(targets) == 0 {
		return
	}

	b.deliver(b.message("plan.changed", ev), targets)
}

func (b *EventBroadcaster) message(event string, data interface{}) EventMessage {
	return EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
	}
}

func (b *EventBroadcaster) deliver(msg EventMessage, targets []*Client) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return
	}

	for _, client := range targets {
		if err := client.Write(websocket.TextMessage, data); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", msg.Event).
				Msg("Failed to deliver event")
		}
	}
}
