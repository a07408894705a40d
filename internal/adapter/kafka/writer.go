package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

// Publisher exports enriched records and run reports to Kafka.
// It implements pipeline.Publisher.
type Publisher struct {
	writer        *kafkago.Writer
	enrichedTopic string
	reportTopic   string
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewPublisher creates a Kafka producer. The topic is set per message so one
// writer serves both topics.
func NewPublisher(brokers []string, enrichedTopic, reportTopic string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Publisher{
		writer:        w,
		enrichedTopic: enrichedTopic,
		reportTopic:   reportTopic,
		metrics:       metrics,
		logger:        logger,
	}
}

// PublishEnriched writes every enriched record, keyed by order id, in a
// single WriteMessages call.
func (p *Publisher) PublishEnriched(ctx context.Context, runID string, records []domain.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeEnriched(runID, records[i])
		if err != nil {
			return err
		}
		msg.Topic = p.enrichedTopic
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish enriched records: %w", err)
	}
	p.metrics.MessagesProduced.Add(float64(len(msgs)))
	p.logger.Debug("published enriched records", "topic", p.enrichedTopic, "count", len(msgs))
	return nil
}

// PublishReport writes the run report, keyed by run id.
func (p *Publisher) PublishReport(ctx context.Context, report domain.RunReport) error {
	msg, err := serializeReport(report)
	if err != nil {
		return err
	}
	msg.Topic = p.reportTopic
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run report: %w", err)
	}
	p.metrics.MessagesProduced.Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeEnriched marshals an EnrichedRecord into a Kafka message.
func serializeEnriched(runID string, rec domain.EnrichedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize enriched record %d: %w", rec.Sales.OrderID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(rec.Sales.OrderID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "customer_found", Value: []byte(strconv.FormatBool(rec.Customer != nil))},
			{Key: "weather_found", Value: []byte(strconv.FormatBool(rec.Weather != nil))},
		},
	}, nil
}

// serializeReport marshals a RunReport into a Kafka message.
func serializeReport(report domain.RunReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "completed", Value: []byte(strconv.FormatBool(report.Completed))},
			{Key: "finished_at", Value: []byte(report.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
