package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	infraoutbox "github.com/DanielNoblero/consultorios-app/internal/infra/outbox"
)

// Deliverer accepts decoded outbox records; changes.Dispatcher is one.
type Deliverer interface {
	Deliver(ctx context.Context, rec appoutbox.EventRecord) error
}

// EventHandler unwraps the CloudEvents envelopes written by the outbox
// worker and hands the record back to the application.
type EventHandler struct {
	Target Deliverer
}

func (h EventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	rec, err := DecodeEnvelope(msg)
	if err != nil {
		return err
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(rec.Headers))
	return h.Target.Deliver(ctx, rec)
}

// DecodeEnvelope turns a structured-mode CloudEvent back into the record it
// was built from.
func DecodeEnvelope(msg *sarama.ConsumerMessage) (appoutbox.EventRecord, error) {
	var env infraoutbox.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return appoutbox.EventRecord{}, fmt.Errorf("kafka: decode envelope on %s: %w", msg.Topic, err)
	}
	if env.ID == "" || env.Type == "" {
		return appoutbox.EventRecord{}, fmt.Errorf("kafka: envelope on %s lacks id or type", msg.Topic)
	}
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		headers[string(h.Key)] = string(h.Value)
	}
	if env.TraceParent != "" {
		headers["traceparent"] = env.TraceParent
	}
	aggregate := env.Subject
	if aggregate == "" {
		aggregate = string(msg.Key)
	}
	return appoutbox.EventRecord{
		ID:         env.ID,
		Name:       env.EventName(),
		Payload:    []byte(env.Data),
		OccurredAt: env.Time,
		Aggregate:  aggregate,
		Headers:    headers,
	}, nil
}

// Topics lists the topics the recalculation consumer subscribes to.
func Topics(prefix string) []string {
	return []string{
		infraoutbox.TopicFor(prefix, "booking"),
		infraoutbox.TopicFor(prefix, "pricing"),
	}
}
