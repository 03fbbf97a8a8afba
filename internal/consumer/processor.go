// Package consumer ingests per-platform activity records from Kafka and
// hands them to the reconciliation pipeline.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the slice of kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler consumes decoded records.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is one Kafka record after stripping the schema registry framing.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor drives one reader in a fetch, decode, hand off, commit loop.
// Offsets advance only after the handler succeeds, except for records that
// can never decode.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor over the given reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[record-consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until the context is cancelled, processing records one at a time.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch failed: %v", err)
			continue
		}

		p.process(ctx, msg)
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) {
	record, err := decode(msg)
	if err != nil {
		p.logger.Printf("dropping undecodable record at %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		recordDecodeError(msg.Topic)
		// Re-reading an undecodable record cannot succeed; commit past it.
		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit failed for undecodable record: %v", commitErr)
		}
		return
	}

	if err := p.handler.Handle(ctx, record); err != nil {
		p.logger.Printf("handler failed (event_type=%s, tenant=%s): %v", record.EventType, record.TenantID, err)
		recordHandlerError(record)
		return
	}

	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit failed: %v", err)
		return
	}
	recordProcessed(record)
}

// decode strips the 5-byte registry frame (magic byte plus big-endian schema
// id) and collects the routing headers the dispatcher sets on publish.
func decode(msg kafka.Message) (Message, error) {
	eventType, ok := header(msg, "event_type")
	if !ok {
		return Message{}, errors.New("event_type header missing")
	}
	if len(msg.Value) < 5 || msg.Value[0] != 0 {
		return Message{}, fmt.Errorf("value is not registry wire format (len=%d)", len(msg.Value))
	}

	tenantID, _ := header(msg, "tenant_id")
	subject, _ := header(msg, "schema_subject")

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		TenantID:      string(tenantID),
		SchemaSubject: string(subject),
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:5])),
		Payload:       json.RawMessage(append([]byte(nil), msg.Value[5:]...)),
	}, nil
}

func header(msg kafka.Message, key string) ([]byte, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}
