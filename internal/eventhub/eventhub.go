// Package eventhub fans out kernel events (trades, liquidations, order book
// snapshots, market stat updates) to subscribers over buffered channels.
//
// Grounded on internal/trade/ws_hub.go's register/unregister/broadcast
// dispatcher loop from the AMOORCHING-ATMX example, generalized from a
// websocket hub (subscribers are *websocket.Conn) to a transport-agnostic
// one (subscribers are plain Go channels) since this kernel has no
// transport layer of its own — the external API/WS gateway is the thing
// that would hold the actual websocket.Conn and drain a Subscription.
package eventhub

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// subscriberBuffer bounds how many unconsumed events a slow subscriber may
// accumulate before the hub drops the subscriber (spec.md §4.6).
const subscriberBuffer = 256

// EventType classifies an Envelope's payload.
type EventType string

const (
	EventTrade       EventType = "trade"
	EventOrderUpdate EventType = "order_update"
	EventPosition    EventType = "position"
	EventOrderBook   EventType = "order_book"
	EventLiquidation EventType = "liquidation"
	EventMarketStats EventType = "market_stats"
	EventCandle      EventType = "candle"
)

// Envelope is the unit of broadcast: a typed, channel-scoped payload with
// a millisecond timestamp, matching spec.md §4.6's wire shape.
type Envelope struct {
	Type        EventType   `json:"type"`
	Channel     string      `json:"channel"`
	Data        interface{} `json:"data"`
	TimestampMs int64       `json:"timestamp_ms"`
}

// Subscription is a live registration; the caller drains Events until it
// calls Close (or the hub is closed), at which point the channel is closed.
type Subscription struct {
	Events <-chan Envelope

	hub *Hub
	id  uint64
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unregister(s.id)
}

type subscriber struct {
	id      uint64
	channel string // "" subscribes to every channel
	ch      chan Envelope
}

// Hub is the central dispatcher. One Hub instance serves every instrument;
// Envelope.Channel disambiguates ("orderbook:R.index", "trades:R.index",
// "stats:R.index", ...).
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	dropped atomic.Uint64 // count of envelopes dropped due to a full subscriber buffer; Broadcast only takes an RLock, so this must be updated atomically
}

// New creates a Hub. logger may be zap.NewNop() in tests.
func New(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a new subscriber. An empty channel subscribes to all
// broadcasts; a non-empty channel receives only Envelopes whose Channel
// field matches exactly.
func (h *Hub) Subscribe(channel string) *Subscription {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	sub := &subscriber{id: id, channel: channel, ch: make(chan Envelope, subscriberBuffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	return &Subscription{Events: sub.ch, hub: h, id: id}
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// alwaysBroadcast are the event types spec.md §4.6 delivers to every
// subscriber regardless of their registered channel: trade, position, and
// liquidation. Every other type is channel-scoped.
func alwaysBroadcast(t EventType) bool {
	return t == EventTrade || t == EventPosition || t == EventLiquidation
}

// Broadcast delivers an envelope to every subscriber registered for its
// channel (or for all channels), except for trade, position, and
// liquidation envelopes, which bypass channel scoping entirely and reach
// every subscriber (spec.md §4.6). If a subscriber's buffer is full, the
// hub drops the subscriber itself — not just the envelope — unregistering
// it and closing its channel (spec.md §4.6), rather than blocking the
// caller on a slow consumer.
func (h *Hub) Broadcast(env Envelope) {
	if env.TimestampMs == 0 {
		env.TimestampMs = time.Now().UnixMilli()
	}

	fanoutAll := alwaysBroadcast(env.Type)

	h.mu.RLock()
	var toDrop []uint64
	for _, sub := range h.subs {
		if !fanoutAll && sub.channel != "" && sub.channel != env.Channel {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			h.dropped.Add(1)
			toDrop = append(toDrop, sub.id)
			if h.logger != nil {
				h.logger.Warn("eventhub: dropping subscriber, buffer full",
					zap.Uint64("subscriber_id", sub.id),
					zap.String("channel", env.Channel),
					zap.String("type", string(env.Type)))
			}
		}
	}
	h.mu.RUnlock()

	for _, id := range toDrop {
		h.unregister(id)
	}
}

// Dropped reports the cumulative number of envelopes dropped for a full
// subscriber buffer, for metrics export.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// SubscriberCount reports the current number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters and closes every subscriber channel. Intended for
// kernel shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		close(sub.ch)
	}
}
