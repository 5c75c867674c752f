package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublishDeliversJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	pub, err := Open(ctx, "racecards-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { assert.NoError(t, pub.Close()) }()

	topic, err := pub.client.CreateTopic(ctx, "snapshots")
	require.NoError(t, err)
	_, err = pub.client.CreateSubscription(ctx, "snapshots-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "snapshots", map[string]any{"run_id": "run-1", "races": 12})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Eventually(t, func() bool { return len(srv.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := srv.Messages()[0]
	assert.Equal(t, "application/json", msg.Attributes["content_type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.InDelta(t, 12.0, decoded["races"], 0.0001)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	var unset *Publisher
	_, err := unset.Publish(context.Background(), "t", nil)
	require.Error(t, err)
	require.NoError(t, unset.Close())

	p := &Publisher{client: &pubsub.Client{}, topics: map[string]*pubsub.Topic{}}
	_, err = p.Publish(context.Background(), "", nil)
	require.ErrorContains(t, err, "topic is required")

	_, err = p.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
