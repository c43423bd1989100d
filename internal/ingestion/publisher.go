package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultReportTopic receives file reports unless a topic is configured.
const DefaultReportTopic = "geopulse.ingestion.reports"

// publishBatchTimeout caps how long the writer holds a report waiting for
// batch companions. Reports arrive at file cadence (seconds apart), so the
// writer's default 1s batching would only add latency.
const publishBatchTimeout = 100 * time.Millisecond

type (
	// fileReportMessage is the wire form of a FileReport. Kept separate from
	// the domain type so the published contract does not shift when internal
	// fields do.
	fileReportMessage struct {
		CycleID     string    `json:"cycle_id"`
		File        string    `json:"file"`
		State       string    `json:"state"`
		RowsRead    int       `json:"rows_read"`
		RowsValid   int       `json:"rows_valid"`
		RowsDeduped int       `json:"rows_deduped"`
		Applied     int       `json:"applied"`
		Skipped     int       `json:"skipped"`
		RowErrors   []string  `json:"row_errors,omitempty"`
		Error       string    `json:"error,omitempty"`
		PublishedAt time.Time `json:"published_at"`
	}

	// KafkaReportPublisher publishes file reports to a Kafka topic, keyed by
	// cycle ID so one cycle's reports land on one partition in order.
	//
	// Publishing is best-effort by contract: callers log failures and move
	// on. The publisher itself never retries beyond the writer's defaults.
	KafkaReportPublisher struct {
		writer *kafka.Writer
		logger *slog.Logger
	}
)

var _ ReportPublisher = (*KafkaReportPublisher)(nil)

// NewKafkaReportPublisher creates a publisher writing to topic on the given
// brokers. An empty topic falls back to DefaultReportTopic.
func NewKafkaReportPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaReportPublisher {
	if topic == "" {
		topic = DefaultReportTopic
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           publishBatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &KafkaReportPublisher{
		writer: writer,
		logger: logger,
	}
}

// PublishFileReport publishes one file report as JSON, keyed by cycle ID.
func (p *KafkaReportPublisher) PublishFileReport(
	ctx context.Context,
	cycleID string,
	report *FileReport,
) error {
	msg := fileReportMessage{
		CycleID:     cycleID,
		File:        report.File,
		State:       report.State.String(),
		RowsRead:    report.RowsRead,
		RowsValid:   report.RowsValid,
		RowsDeduped: report.RowsDeduped,
		Error:       report.Err,
		PublishedAt: time.Now().UTC(),
	}

	if report.Summary != nil {
		msg.Applied = report.Summary.Applied
		msg.Skipped = report.Summary.Skipped
		msg.RowErrors = report.Summary.Errors
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal file report: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(cycleID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish file report: %w", err)
	}

	p.logger.Debug("Published file report",
		slog.String("cycle_id", cycleID),
		slog.String("file", report.File),
		slog.String("topic", p.writer.Topic),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaReportPublisher) Close() error {
	return p.writer.Close()
}
