//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/config"
	"github.com/ojparkinson/gpx-ingest/internal/persistance"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func spinUpRabbitMQ(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.Run(ctx, "rabbitmq:4.1",
		testcontainers.WithExposedPorts("5672/tcp"),
		testcontainers.WithEnv(map[string]string{
			"RABBITMQ_DEFAULT_USER": "gpx",
			"RABBITMQ_DEFAULT_PASS": "gpx",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5672/tcp"),
				wait.ForLog("Server startup complete"),
			).WithStartupTimeoutDefault(2*time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("Error running RabbitMQ server: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate rabbitmq container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "5672/tcp", "")
	require.NoError(t, err)
	return endpoint
}

func TestPublisherRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Endpoint:       spinUpRabbitMQ(t, ctx),
		Username:       "gpx",
		Password:       "gpx",
		AMQPExchange:   "gpx_topic",
		AMQPRoutingKey: "gpx.points",
		RequestTimeout: 10 * time.Second,
	}

	publisher, err := NewPublisher(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer publisher.Close(ctx)

	conn, err := amqp.Dial(cfg.AMQPURL())
	require.NoError(t, err)
	defer conn.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "gpx.#", cfg.AMQPExchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	n, err := publisher.Submit(ctx, "gpx", persistance.GPXSchema(), testRows(t))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	select {
	case d := <-deliveries:
		assert.Equal(t, "gpx.points", d.RoutingKey)
		assert.NotEmpty(t, d.MessageId)

		var batch Batch
		require.NoError(t, json.Unmarshal(d.Body, &batch))
		assert.Equal(t, "gpx", batch.Table)
		require.Len(t, batch.Rows, 1)
		assert.Equal(t, "commute", batch.Rows[0][0])
	case <-time.After(10 * time.Second):
		t.Fatal("no message delivered")
	}
}
