// Package publish ships finished reports to Kafka so a fleet of
// machines can feed one diagnostics pipeline. Publishing is best
// effort; a failed write never fails the run.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"conncheck/internal/domain"
)

type Publisher struct {
	writer *kafka.Writer
}

func New(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 10 * time.Second,
		},
	}
}

// PublishReport writes one report as a single message keyed by run id.
func (p *Publisher) PublishReport(ctx context.Context, rep *domain.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rep.Meta.RunID),
		Value: payload,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
