package eventhub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubscribe_ReceivesMatchingChannel(t *testing.T) {
	h := New(zap.NewNop())
	sub := h.Subscribe("trades:RINDEX-PERP")
	defer sub.Close()

	h.Broadcast(Envelope{Type: EventTrade, Channel: "trades:RINDEX-PERP", Data: "payload"})

	select {
	case env := <-sub.Events:
		assert.Equal(t, EventTrade, env.Type)
		assert.Equal(t, "payload", env.Data)
		assert.NotZero(t, env.TimestampMs)
	case <-time.After(time.Second):
		t.Fatal("expected envelope, got none")
	}
}

func TestBroadcast_DoesNotDeliverToOtherChannel(t *testing.T) {
	h := New(zap.NewNop())
	sub := h.Subscribe("trades:RINDEX-PERP")
	defer sub.Close()

	h.Broadcast(Envelope{Type: EventOrderBook, Channel: "orderbook:RINDEX-PERP"})

	select {
	case env := <-sub.Events:
		t.Fatalf("unexpected envelope for unsubscribed channel: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_TradePositionAndLiquidationIgnoreChannelScoping(t *testing.T) {
	h := New(zap.NewNop())
	sub := h.Subscribe("orders:RINDEX-PERP")
	defer sub.Close()

	h.Broadcast(Envelope{Type: EventTrade, Channel: "trades:RINDEX-PERP"})
	h.Broadcast(Envelope{Type: EventPosition, Channel: "positions:RINDEX-PERP"})
	h.Broadcast(Envelope{Type: EventLiquidation, Channel: "liquidations:RINDEX-PERP"})

	for _, want := range []EventType{EventTrade, EventPosition, EventLiquidation} {
		select {
		case env := <-sub.Events:
			assert.Equal(t, want, env.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected a broadcast %s envelope despite channel mismatch", want)
		}
	}
}

func TestSubscribe_EmptyChannelReceivesEverything(t *testing.T) {
	h := New(zap.NewNop())
	sub := h.Subscribe("")
	defer sub.Close()

	h.Broadcast(Envelope{Type: EventTrade, Channel: "trades:A"})
	h.Broadcast(Envelope{Type: EventLiquidation, Channel: "liquidations:B"})

	first := <-sub.Events
	second := <-sub.Events
	assert.Equal(t, EventTrade, first.Type)
	assert.Equal(t, EventLiquidation, second.Type)
}

func TestBroadcast_DropsSubscriberWhenBufferFull(t *testing.T) {
	// spec.md §4.6: a subscriber that falls behind is dropped outright —
	// unregistered and its channel closed — not just starved of envelopes.
	h := New(zap.NewNop())
	sub := h.Subscribe("x")

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Broadcast(Envelope{Type: EventTrade, Channel: "x"})
	}

	assert.Equal(t, 0, h.SubscriberCount())
	for range sub.Events {
	}
	_, ok := <-sub.Events
	assert.False(t, ok, "full buffer must close the subscriber's channel")
}

func TestUnregister_ClosesEventsChannel(t *testing.T) {
	h := New(zap.NewNop())
	sub := h.Subscribe("x")
	require.Equal(t, 1, h.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, h.SubscriberCount())

	_, ok := <-sub.Events
	assert.False(t, ok, "channel must be closed on unregister")
}

func TestClose_ClosesAllSubscribers(t *testing.T) {
	h := New(zap.NewNop())
	a := h.Subscribe("")
	b := h.Subscribe("")

	h.Close()

	_, okA := <-a.Events
	_, okB := <-b.Events
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 0, h.SubscriberCount())
}
