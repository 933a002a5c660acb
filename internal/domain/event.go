package domain

import (
	"context"
	"time"
)

// Channels on the signal bus.
const (
	ChannelSession     = "propertyx:session"
	ChannelTx          = "propertyx:tx"
	ChannelMarketplace = "propertyx:marketplace"
	ChannelNotify      = "propertyx:notify"
	StreamAudit        = "propertyx:audit"
)

// EventKind names what happened.
type EventKind string

const (
	EventSessionConnected    EventKind = "session_connected"
	EventSessionDisconnected EventKind = "session_disconnected"
	EventBalanceUpdated      EventKind = "balance_updated"
	EventTxSubmitted         EventKind = "tx_submitted"
	EventTxFailed            EventKind = "tx_failed"
	EventMarketplaceUpdated  EventKind = "marketplace_updated"
	EventAggregationFailed   EventKind = "aggregation_failed"
	EventProposalCreated     EventKind = "proposal_created"
	EventNotification        EventKind = "notification"
)

// Event is the JSON envelope published on the signal bus and pushed to
// websocket clients.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Address   string         `json:"address,omitempty"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventPublisher delivers an event on a signal-bus channel.
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel string, ev Event) error
}

// ChannelFor returns the channel an event kind is published on.
func ChannelFor(kind EventKind) string {
	switch kind {
	case EventSessionConnected, EventSessionDisconnected, EventBalanceUpdated:
		return ChannelSession
	case EventTxSubmitted, EventTxFailed:
		return ChannelTx
	case EventMarketplaceUpdated, EventAggregationFailed, EventProposalCreated:
		return ChannelMarketplace
	default:
		return ChannelNotify
	}
}
