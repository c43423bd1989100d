package ingestion

import (
	"log/slog"
	"testing"
)

// ==============================================================================
// Unit Tests: Kafka Report Publisher Construction
// ==============================================================================

func TestNewKafkaReportPublisher_DefaultTopic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	publisher := NewKafkaReportPublisher([]string{"localhost:9092"}, "",
		slog.New(slog.DiscardHandler))

	defer func() {
		_ = publisher.Close()
	}()

	if publisher.writer.Topic != DefaultReportTopic {
		t.Errorf("Topic = %q, expected default %q", publisher.writer.Topic, DefaultReportTopic)
	}
}

func TestNewKafkaReportPublisher_ExplicitTopic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	publisher := NewKafkaReportPublisher([]string{"localhost:9092"}, "custom.reports",
		slog.New(slog.DiscardHandler))

	defer func() {
		_ = publisher.Close()
	}()

	if publisher.writer.Topic != "custom.reports" {
		t.Errorf("Topic = %q, expected custom.reports", publisher.writer.Topic)
	}
}
