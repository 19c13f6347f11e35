//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mosquittoAnonymousConfig = `listener 1883
allow_anonymous true
`

// MosquittoContainer wraps an Eclipse Mosquitto MQTT broker.
type MosquittoContainer struct {
	container testcontainers.Container
	brokerURL string
}

// MosquittoConfig holds configuration for Mosquitto container creation.
type MosquittoConfig struct {
	ImageTag string
}

// DefaultMosquittoConfig returns a MosquittoConfig with sensible defaults.
func DefaultMosquittoConfig() MosquittoConfig {
	return MosquittoConfig{ImageTag: "2.0"}
}

// NewMosquittoContainer starts a broker that accepts anonymous clients.
// If config is nil, uses DefaultMosquittoConfig().
func NewMosquittoContainer(ctx context.Context, config *MosquittoConfig) (*MosquittoContainer, error) {
	if config == nil {
		defaultCfg := DefaultMosquittoConfig()
		config = &defaultCfg
	}

	req := testcontainers.ContainerRequest{
		Image:        "eclipse-mosquitto:" + config.ImageTag,
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            strings.NewReader(mosquittoAnonymousConfig),
				ContainerFilePath: "/mosquitto-no-auth.conf",
				FileMode:          0o644,
			},
		},
		WaitingFor: wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "1883")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &MosquittoContainer{
		container: container,
		brokerURL: "tcp://" + net.JoinHostPort(host, strconv.Itoa(mappedPort.Int())),
	}, nil
}

// GetBrokerURL returns the MQTT broker URL (e.g., "tcp://localhost:32771").
func (c *MosquittoContainer) GetBrokerURL(t *testing.T) string {
	t.Helper()
	if c.brokerURL == "" {
		t.Fatal("broker URL is empty")
	}
	return c.brokerURL
}

// CreateClient connects a raw paho client to the broker. The caller
// disconnects it.
func (c *MosquittoContainer) CreateClient(clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.brokerURL)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}
	return client, nil
}

// Terminate stops and removes the container.
func (c *MosquittoContainer) Terminate() error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(context.Background()); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
