// Package kafkasink optionally mirrors every eventhub.Envelope onto a Kafka
// topic, giving external consumers (analytics, audit, a separate WS
// gateway instance) a durable, replayable feed independent of the
// in-process hub's subscriber buffers.
//
// Grounded on internal/trading/messaging/kafka_client.go's KafkaClient —
// same kafka.Writer construction and config knobs, trimmed to the fields
// this kernel's event envelope actually needs and switched to Async
// writes, since this sink feeds an at-most-once audit mirror rather than
// a settlement-critical publish path.
package kafkasink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/eventhub"
)

// Config mirrors KafkaClientConfig, trimmed to what this sink exercises.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible low-latency mirroring defaults.
func DefaultConfig(brokers []string, topic string) Config {
	return Config{
		Brokers:      brokers,
		Topic:        topic,
		BatchSize:    50,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: time.Second,
	}
}

// Sink subscribes to a Hub and republishes every envelope to Kafka.
type Sink struct {
	logger *zap.Logger
	writer *kafka.Writer

	mu     sync.Mutex
	closed bool
}

// New constructs a Sink against the given broker/topic configuration. It
// does not start consuming until Run is called.
func New(cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.CRC32Balancer{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Run subscribes to channel (empty string = every channel) and mirrors
// envelopes to Kafka until ctx is cancelled or the subscription is closed.
// Intended to be run in its own goroutine.
func (s *Sink) Run(ctx context.Context, hub *eventhub.Hub, channel string) {
	sub := hub.Subscribe(channel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.Events:
			if !ok {
				return
			}
			s.publish(ctx, env)
		}
	}
}

func (s *Sink) publish(ctx context.Context, env eventhub.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("kafkasink: marshal envelope failed", zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writer.WriteTimeout)
	defer cancel()

	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(env.Channel),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		s.logger.Warn("kafkasink: publish failed", zap.String("channel", env.Channel), zap.Error(err))
	}
}

// Close releases the underlying Kafka writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
