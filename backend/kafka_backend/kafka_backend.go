package kafkabackend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// FlushTimeout is the timeout we give to our kafka producer
// to flush pending messages.
const FlushTimeout = 5000

// Backend delivers notifications by producing to a Kafka topic.
type Backend struct {
	producer *kafka.Producer
}

// notification is the message payload produced to the topic.
type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ID returns "kafka".
func (b *Backend) ID() string {
	return "kafka"
}

// Start starts the sink by creating a producer, given a set of options
// provided by the configuration. All keys are passed through to the
// underlying kafka client verbatim.
func (b *Backend) Start(ctx context.Context, cfg map[string]interface{}) error {
	kafkaCfg := make(kafka.ConfigMap)
	for k, v := range cfg {
		err := kafkaCfg.SetKey(k, v)
		if err != nil {
			return err
		}
	}

	var err error
	b.producer, err = kafka.NewProducer(&kafkaCfg)
	return err
}

// Notify produces a Kafka message to the topic named by key.
func (b *Backend) Notify(key, title, body string) error {
	payload, err := json.Marshal(notification{Title: title, Body: body})
	if err != nil {
		return err
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &key, Partition: kafka.PartitionAny},
		Value:          payload,
	}

	return b.producer.Produce(message, nil)
}

// Stop gracefully terminates b after flushing any outstanding messages
// to Kafka. An error is returned if (and only if) not all messages were
// flushed.
func (b *Backend) Stop() error {
	var err error

	unflushed := b.producer.Flush(FlushTimeout)
	if unflushed > 0 {
		err = fmt.Errorf("After %d ms there were still %d unflushed messages", FlushTimeout, unflushed)
	}

	b.producer.Close()
	return err
}
