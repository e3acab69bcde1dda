package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/task-priority-api/internal/priority"
	publisher "github.com/JakeFAU/task-priority-api/internal/publisher/pubsub"
)

func newTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "predictions")
	require.NoError(t, err)
	return srv, topic
}

func TestPublishEvent(t *testing.T) {
	srv, topic := newTopic(t)
	pub := publisher.New(topic)
	t.Cleanup(pub.Stop)

	event := priority.Event{
		Type:      priority.EventTypePredictionCreated,
		RequestID: "req-42",
		Prediction: priority.Prediction{
			ID:       "pred-1",
			Priority: priority.LabelMedium,
		},
	}
	id, err := pub.Publish(context.Background(), "ignored", event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "req-42", msgs[0].Attributes[publisher.AttrRequestID])
	assert.Equal(t, priority.EventTypePredictionCreated, msgs[0].Attributes[publisher.AttrEventType])
	assert.Equal(t, priority.LabelMedium, msgs[0].Attributes[publisher.AttrPriority])

	var got priority.Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "pred-1", got.Prediction.ID)
}

func TestPublishArbitraryPayload(t *testing.T) {
	srv, topic := newTopic(t)
	pub := publisher.New(topic)
	t.Cleanup(pub.Stop)

	_, err := pub.Publish(context.Background(), "", map[string]string{"k": "v"})
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"k":"v"}`, string(msgs[0].Data))
	assert.Empty(t, msgs[0].Attributes)
}

func TestPublishErrors(t *testing.T) {
	var nilPub *publisher.Publisher
	_, err := nilPub.Publish(context.Background(), "", "x")
	assert.Error(t, err)
	nilPub.Stop()

	_, topic := newTopic(t)
	pub := publisher.New(topic)
	t.Cleanup(pub.Stop)
	_, err = pub.Publish(context.Background(), "", func() {})
	assert.ErrorContains(t, err, "marshal payload")
}
