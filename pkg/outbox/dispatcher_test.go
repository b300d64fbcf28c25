package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/skishop/reservation-service/pkg/tracing"
)

type captureProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *captureProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func headerValue(t *testing.T, msg kafka.Message, key string) (string, bool) {
	t.Helper()
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestDispatchCarriesStoredTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	producer := &captureProducer{}
	d := NewDispatcher(testLogger(), producer, "reservation-events")

	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	err := d.Dispatch(context.Background(), Event{
		ID:            7,
		AggregateType: "reservation",
		AggregateID:   "res-1",
		Type:          "ReservationCreated",
		Payload:       []byte(`{"id":"res-1"}`),
		Traceparent:   traceparent,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(producer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(producer.msgs))
	}
	msg := producer.msgs[0]
	if msg.Topic != "reservation-events" || string(msg.Key) != "res-1" {
		t.Fatalf("unexpected routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	got, ok := headerValue(t, msg, tracing.TraceparentHeader)
	if !ok {
		t.Fatal("traceparent header missing")
	}
	if got != traceparent {
		t.Fatalf("traceparent round-trip: got %s, want %s", got, traceparent)
	}
	if eventType, _ := headerValue(t, msg, "event_type"); eventType != "ReservationCreated" {
		t.Fatalf("event_type header: got %s", eventType)
	}
}

func TestDispatchWithoutTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	producer := &captureProducer{}
	d := NewDispatcher(testLogger(), producer, "reservation-events")

	if err := d.Dispatch(context.Background(), Event{ID: 8, AggregateID: "res-2", Type: "ReservationCancelled"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, ok := headerValue(t, producer.msgs[0], tracing.TraceparentHeader); ok {
		t.Fatal("expected no traceparent header without a stored trace")
	}
}

func TestDispatchProducerError(t *testing.T) {
	wantErr := errors.New("broker unavailable")
	d := NewDispatcher(testLogger(), &captureProducer{err: wantErr}, "reservation-events")

	if err := d.Dispatch(context.Background(), Event{ID: 9, AggregateID: "res-3"}); !errors.Is(err, wantErr) {
		t.Fatalf("expected producer error, got %v", err)
	}
}
