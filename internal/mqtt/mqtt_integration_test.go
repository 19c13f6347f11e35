//go:build integration

// Package mqtt_test runs the MQTT client against a real Mosquitto broker
// managed by testcontainers.
//
//nolint:misspell // Mosquitto is the official Eclipse project name
package mqtt_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/mqtt"
	"github.com/estoca-ai/estoca-worker/internal/testutil/containers"
)

const integrationTestTopic = "estoca/integration-test"

var mqttBroker *containers.MosquittoContainer

func TestMain(m *testing.M) {
	ctx := context.Background() //nolint:gocritic // TestMain has no *testing.T for t.Context()

	var err error
	mqttBroker, err = containers.NewMosquittoContainer(ctx, nil)
	if err != nil {
		panic("failed to create MQTT broker: " + err.Error())
	}

	code := m.Run()

	_ = mqttBroker.Terminate()
	os.Exit(code)
}

func createIntegrationClient(t *testing.T) *mqtt.Client {
	t.Helper()
	settings := conf.MQTTSettings{
		Broker:   mqttBroker.GetBrokerURL(t),
		ClientID: fmt.Sprintf("test-%d", time.Now().UnixNano()),
	}
	client, err := mqtt.NewClient(settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	require.NoError(t, err, "failed to create MQTT client")
	t.Cleanup(client.Disconnect)
	return client
}

func createRawPahoClient(t *testing.T, clientID string) paho.Client {
	t.Helper()
	client, err := mqttBroker.CreateClient(clientID)
	require.NoError(t, err, "raw client connect failed")
	t.Cleanup(func() { client.Disconnect(250) })
	return client
}

func TestMQTTIntegration_ConnectAndDisconnect(t *testing.T) {
	client := createIntegrationClient(t)

	ctx, cancel := context.WithTimeout(t.Context(), 15*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx), "connect should succeed")
	assert.True(t, client.IsConnected())

	client.Disconnect()
	assert.False(t, client.IsConnected())
}

func TestMQTTIntegration_ConnectRejectsCooldown(t *testing.T) {
	client := createIntegrationClient(t)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	client.Disconnect()

	err := client.Connect(ctx)
	require.Error(t, err, "rapid reconnect should be rejected by cooldown")
	assert.Contains(t, err.Error(), "connection attempt too recent")
}

func TestMQTTIntegration_ConnectWithContextCancellation(t *testing.T) {
	client := createIntegrationClient(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.Error(t, client.Connect(ctx))
}

func TestMQTTIntegration_SubscribeReceivesPayload(t *testing.T) {
	client := createIntegrationClient(t)
	topic := integrationTestTopic + "/push"
	received := make(chan string, 1)

	require.NoError(t, client.Subscribe(topic, func(_ context.Context, payload []byte) {
		received <- string(payload)
	}))

	ctx, cancel := context.WithTimeout(t.Context(), 15*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	publisher := createRawPahoClient(t, "integration-publisher")
	require.Eventually(t, func() bool {
		token := publisher.Publish(topic, 1, false, `{"title":"Estoca.AI","body":"Estoque baixo"}`)
		token.WaitTimeout(5 * time.Second)
		select {
		case msg := <-received:
			assert.JSONEq(t, `{"title":"Estoca.AI","body":"Estoque baixo"}`, msg)
			return true
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 100*time.Millisecond)
}

func TestMQTTIntegration_PublishAndReceive(t *testing.T) {
	client := createIntegrationClient(t)

	ctx, cancel := context.WithTimeout(t.Context(), 15*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	topic := integrationTestTopic + "/sync"
	received := make(chan string, 1)
	subscriber := createRawPahoClient(t, "integration-subscriber")
	token := subscriber.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		received <- string(msg.Payload())
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	require.NoError(t, client.Publish(ctx, topic, []byte("sync-data")))

	select {
	case msg := <-received:
		assert.Equal(t, "sync-data", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
