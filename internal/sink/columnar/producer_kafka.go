// Package columnar provides the analytic sink adapter. Rows are produced to
// a Kafka topic that the warehouse loader drains into the analytic table.
package columnar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
)

// KafkaSink produces columnar rows to a topic. It satisfies
// ports.BatchSinkAdapter and ports.SinkAdapter (single rows become a batch
// of one).
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink constructs a columnar sink over an existing client.
func NewKafkaSink(client *kgo.Client, topic string) (*KafkaSink, error) {
	if topic == "" {
		return nil, errors.New("columnar sink requires a topic")
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// Dial connects to the brokers and returns a ready sink.
func Dial(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka brokers: %w", err)
	}
	return NewKafkaSink(client, topic)
}

// Close flushes and releases the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}

// SendBatch produces every row synchronously and reports the first record's
// topic/partition@offset as the sink identifier. Keys are record IDs so a
// re-sent batch lands in the same partitions.
func (s *KafkaSink) SendBatch(ctx context.Context, rows []translate.ColumnarRow) (models.SinkResult, error) {
	if len(rows) == 0 {
		return models.SinkResult{}, errors.New("empty batch")
	}

	records := make([]*kgo.Record, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return models.SinkResult{}, fmt.Errorf("encode row: %w", err)
		}
		recordID, _ := row[translate.ColRecordID].(string)
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(recordID),
			Value: payload,
		})
	}

	results := s.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return models.SinkResult{}, fmt.Errorf("produce batch to %s: %w", s.topic, err)
	}

	first := records[0]
	return models.SinkResult{
		ID: fmt.Sprintf("%s/%d@%d", first.Topic, first.Partition, first.Offset),
	}, nil
}

// Send adapts a single columnar row to the batch path.
func (s *KafkaSink) Send(ctx context.Context, shape translate.SinkShape) (models.SinkResult, error) {
	row, ok := shape.(translate.ColumnarRow)
	if !ok {
		return models.SinkResult{}, fmt.Errorf("columnar sink received %T, want ColumnarRow", shape)
	}
	return s.SendBatch(ctx, []translate.ColumnarRow{row})
}
