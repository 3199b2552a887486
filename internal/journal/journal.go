// internal/journal/journal.go
package journal

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var tracer = otel.Tracer("bookledger/journal")

// Aggregate types.
const (
	AggregateBook   = "book"
	AggregateLoan   = "loan"
	AggregatePerson = "person"
)

// Record appends an event for the aggregate inside tx. The event commits or
// rolls back together with the change it describes.
func Record(ctx context.Context, tx store.Tx, aggregateType string, aggregateID int64, eventType string, payload any) (domain.Event, error) {
	_, span := tracer.Start(ctx, "journal.record",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.Int64("aggregate.id", aggregateID),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	e := domain.Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventData:     data,
	}
	if err := tx.AppendEvent(ctx, &e); err != nil {
		span.RecordError(err)
		return domain.Event{}, err
	}

	span.SetAttributes(attribute.Int("event.version", e.Version))
	return e, nil
}

// History loads every event of an aggregate in version order.
func History(ctx context.Context, r store.Reader, aggregateType string, aggregateID int64) ([]domain.Event, error) {
	_, span := tracer.Start(ctx, "journal.history",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.Int64("aggregate.id", aggregateID),
		),
	)
	defer span.End()

	events, err := r.Events(ctx, aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// Decode unmarshals an event payload into dst.
func Decode(e domain.Event, dst any) error {
	if err := json.Unmarshal(e.EventData, dst); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return nil
}
