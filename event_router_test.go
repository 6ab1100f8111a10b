package sproxy

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestInitEventRouter(t *testing.T) {
	ctx := context.Background()

	router, err := InitEventRouter(ctx, EventsConfig{})
	require.NoError(t, err)
	require.NoError(t, router.Process("key", &Event{Type: LinkUpEvent}))
	require.NoError(t, router.Close())

	_, err = InitEventRouter(ctx, EventsConfig{Router: "nats"})
	require.Error(t, err)

	_, err = InitEventRouter(ctx, EventsConfig{Router: "kafka", KafkaTopic: "links"})
	require.Error(t, err, "brokers are required")
	_, err = InitEventRouter(ctx, EventsConfig{Router: "kafka", KafkaBrokers: "localhost:9092"})
	require.Error(t, err, "topic is required")

	router, err = InitEventRouter(ctx, EventsConfig{
		Router:       "kafka",
		KafkaBrokers: " kafka-1:9092, ,kafka-2:9092 ",
		KafkaTopic:   "links",
	})
	require.NoError(t, err)
	kafkaRouter, ok := router.(*KafkaEventRouter)
	require.True(t, ok)
	require.Equal(t, "links", kafkaRouter.producer.Topic)
	require.True(t, kafkaRouter.producer.Async)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, getBrokers(EventsConfig{KafkaBrokers: " kafka-1:9092, ,kafka-2:9092 "}))
}

func TestGetBrokers(t *testing.T) {
	require.Empty(t, getBrokers(EventsConfig{}))
	require.Equal(t, []string{"a:1", "b:2"}, getBrokers(EventsConfig{KafkaBrokers: "a:1,b:2"}))
}

func TestNodeEventJSON(t *testing.T) {
	node := newNode(3, "/dev/ttyS0.a", RoleVirtual)
	event := newNodeEvent(ConnectFailedEvent, node, errors.New("boom"), "")

	data, err := json.Marshal(event)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "connect_failed", decoded["type"])
	require.Equal(t, "/dev/ttyS0.a", decoded["node"])
	require.Equal(t, "virtual", decoded["role"])
	require.Equal(t, "boom", decoded["error"])
	require.Equal(t, float64(-1), decoded["fd"])

	next := newNodeEvent(LinkUpEvent, node, nil, "")
	require.NotEqual(t, event.Id, next.Id)
}
