package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/reconciliation/internal/domain"
)

// reconciler is the slice of the domain service the ingest handler needs.
type reconciler interface {
	IngestRecord(ctx context.Context, tenantID string, raw domain.RawRecord) (domain.NormalizedRecord, error)
	ReconcileDate(ctx context.Context, tenantID, athleteID string, date time.Time) (*domain.ReconciliationResult, error)
}

// IngestHandler consumes platform activity records published by the sync
// adapters, stores them, and re-reconciles the affected athlete/date.
type IngestHandler struct {
	service reconciler
}

// NewIngestHandler constructs a handler around the reconciliation service.
func NewIngestHandler(service reconciler) *IngestHandler {
	return &IngestHandler{service: service}
}

// Handle processes one platform record. Malformed payloads are counted and
// swallowed so the partition keeps moving; every other failure is retried by
// the processor loop.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	if msg.TenantID == "" {
		recordMalformedRecord(msg.Topic)
		log.Printf("ingest: dropping record without tenant (topic=%s, offset=%d)", msg.Topic, msg.Offset)
		return nil
	}

	var raw domain.RawRecord
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		recordMalformedRecord(msg.Topic)
		log.Printf("ingest: dropping undecodable record (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		return nil
	}

	rec, err := h.service.IngestRecord(ctx, msg.TenantID, raw)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRecord) {
			recordMalformedRecord(msg.Topic)
			log.Printf("ingest: dropping malformed record (topic=%s, platform=%s): %v", msg.Topic, raw.Platform, err)
			return nil
		}
		return fmt.Errorf("ingest record: %w", err)
	}

	result, err := h.service.ReconcileDate(ctx, msg.TenantID, rec.AthleteID, rec.Date)
	if err != nil {
		return fmt.Errorf("reconcile after ingest: %w", err)
	}
	if result.ConflictsDetected > 0 {
		log.Printf("ingest: reconciliation found %d conflict(s) (athlete=%s, date=%s)", result.ConflictsDetected, rec.AthleteID, rec.Date.Format("2006-01-02"))
	}
	return nil
}
