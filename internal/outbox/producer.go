package outbox

import (
	"context"
	"net"
	"sync"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer writes outbox batches to Kafka, holding one writer per
// destination topic. Messages are keyed by partition key, so every event for
// an athlete stays on one partition and arrives in order.
type KafkaProducer struct {
	addr      net.Addr
	transport *kafka.Transport
	mu        sync.Mutex
	writers   map[string]*kafka.Writer
}

// NewKafkaProducer creates a producer for the given broker list.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		addr:      kafka.TCP(brokers...),
		transport: &kafka.Transport{ClientID: "reconciliation-outbox"},
		writers:   make(map[string]*kafka.Writer),
	}
}

// WriteMessages delivers a batch to one topic, creating the topic's writer on
// first use.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerFor(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:         p.addr,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Transport:    p.transport,
	}
	p.writers[topic] = w
	return w
}

// Close shuts down every writer, reporting the first failure.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
