package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/cso-impact-service/internal/config"
	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// Writer publishes impacted-node snapshots to a Kafka topic.
// It implements snapshot.Publisher.
type Writer struct {
	writer   *kafkago.Writer
	operator string
	logger   *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, operator: cfg.Operator, logger: logger}
}

// PublishImpact writes one message per impacted node in a single
// WriteMessages call. An empty snapshot publishes nothing.
func (w *Writer) PublishImpact(ctx context.Context, takenAt time.Time, nodes []domain.ImpactedNode) error {
	if len(nodes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(nodes))
	for i := range nodes {
		msg, err := serializeToMessage(w.operator, takenAt, nodes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// impactRecord is the wire form of one impacted node.
type impactRecord struct {
	Operator        string   `json:"operator"`
	Node            int      `json:"node"`
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	UpstreamSources float64  `json:"upstream_sources"`
	SourcesPerKm2   float64  `json:"sources_per_km2"`
	Monitors        []string `json:"monitors"`
	TakenAt         string   `json:"taken_at"`
}

// serializeToMessage marshals an impacted node into a Kafka message, keyed
// by operator and node so compacted topics retain the latest state per cell.
func serializeToMessage(operator string, takenAt time.Time, node domain.ImpactedNode) (kafkago.Message, error) {
	rec := impactRecord{
		Operator:        operator,
		Node:            node.Node,
		X:               node.X,
		Y:               node.Y,
		UpstreamSources: node.UpstreamSources,
		SourcesPerKm2:   node.SourcesPerKm2,
		Monitors:        node.Monitors,
		TakenAt:         takenAt.Format(time.RFC3339),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize impact record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%s|%d", operator, node.Node)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "operator", Value: []byte(operator)},
			{Key: "taken_at", Value: []byte(takenAt.Format(time.RFC3339))},
		},
	}, nil
}
