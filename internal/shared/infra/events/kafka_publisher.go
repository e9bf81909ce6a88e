package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"

	sharedBus "github.com/davicafu/hexaledger/internal/shared/infra/platform/bus"
)

const idempotencyHeader = "idempotency-key"

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

// Publish serializa el evento a JSON. La clave de partición sale de Keyer y la
// de idempotencia viaja como cabecera.
func (p *KafkaPublisher) Publish(ctx context.Context, event any) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.Error(err))
		return err
	}

	p.log.Debug("Event published successfully", zap.ByteString("key", msg.Key))
	return nil
}

func buildMessage(event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	msg := kafka.Message{Value: data}
	if keyer, ok := event.(sharedBus.Keyer); ok {
		msg.Key = []byte(keyer.PartitionKey())
	}
	if dedup, ok := event.(sharedBus.Deduplicable); ok && dedup.DeduplicationKey() != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: idempotencyHeader, Value: []byte(dedup.DeduplicationKey())})
	}
	return msg, nil
}

// Verificación estática
var _ sharedBus.EventBus = (*KafkaPublisher)(nil)
