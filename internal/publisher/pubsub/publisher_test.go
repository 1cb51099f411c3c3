package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	publisher "github.com/JakeFAU/novelmirror/internal/publisher/pubsub"
)

func fakeServer(t *testing.T) []option.ClientOption {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	return []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := publisher.New(context.Background(), publisher.Config{Topic: "updates"})
	require.ErrorContains(t, err, "project id")

	_, err = publisher.New(context.Background(), publisher.Config{ProjectID: "p"})
	require.ErrorContains(t, err, "topic")
}

func TestNewRejectsMissingTopic(t *testing.T) {
	t.Parallel()

	opts := fakeServer(t)
	_, err := publisher.New(context.Background(), publisher.Config{ProjectID: "novel", Topic: "missing"}, opts...)
	require.ErrorContains(t, err, "does not exist")
}

func TestPublishDeliversJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := fakeServer(t)

	admin, err := pubsub.NewClient(ctx, "novel", opts...)
	require.NoError(t, err)
	defer admin.Close()
	topic, err := admin.CreateTopic(ctx, "updates")
	require.NoError(t, err)
	sub, err := admin.CreateSubscription(ctx, "updates-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub, err := publisher.New(ctx, publisher.Config{ProjectID: "novel", Topic: "updates"}, opts...)
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "", map[string]any{"series_id": 7, "new_chapters": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	received := make(chan *pubsub.Message, 1)
	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			rcancel()
		})
	}()

	select {
	case msg := <-received:
		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		require.EqualValues(t, 7, payload["series_id"])
		require.EqualValues(t, 3, payload["new_chapters"])
		require.Equal(t, "application/json", msg.Attributes["content-type"])
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}
