package sproxy

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/segmentio/kafka-go"
	"strings"
)

type KafkaEventRouter struct {
	ctx      context.Context
	producer *kafka.Writer
}

func NewKafkaEventRouter(ctx context.Context, conf EventsConfig) (*KafkaEventRouter, error) {
	kafkaEventRouter := &KafkaEventRouter{
		ctx: ctx,
	}
	if err := kafkaEventRouter.configure(conf); err != nil {
		return nil, err
	}
	return kafkaEventRouter, nil
}

// Process queues the event; the writer is asynchronous so the event loop
// never waits on the broker.
func (kef *KafkaEventRouter) Process(key string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	return kef.producer.WriteMessages(kef.ctx, message)
}

func (kef *KafkaEventRouter) Close() error {
	return kef.producer.Close()
}

func (kef *KafkaEventRouter) configure(conf EventsConfig) error {
	brokers := getBrokers(conf)
	if len(brokers) == 0 {
		return errors.New("kafka event router: no brokers configured")
	}
	if conf.KafkaTopic == "" {
		return errors.New("kafka event router: no topic configured")
	}
	kef.producer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        conf.KafkaTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Balancer:     &kafka.Hash{},
	}
	return nil
}

func getBrokers(conf EventsConfig) []string {
	var brokers []string
	for _, broker := range strings.Split(conf.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
