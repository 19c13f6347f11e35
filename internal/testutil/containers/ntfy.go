//go:build integration

package containers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NtfyContainer wraps an ntfy push notification server.
type NtfyContainer struct {
	container testcontainers.Container
	host      string
	port      int
}

// NtfyConfig holds configuration for ntfy container creation.
type NtfyConfig struct {
	ImageTag string
}

// NtfyMessage is a message read back from an ntfy topic.
type NtfyMessage struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
	Title   string `json:"title"`
	Time    int64  `json:"time"`
}

// NewNtfyContainer starts an ntfy server with message caching enabled so
// topics can be polled. If config is nil the latest image is used.
func NewNtfyContainer(ctx context.Context, config *NtfyConfig) (*NtfyContainer, error) {
	tag := "latest"
	if config != nil && config.ImageTag != "" {
		tag = config.ImageTag
	}

	req := testcontainers.ContainerRequest{
		Image:        "binwiederhier/ntfy:" + tag,
		ExposedPorts: []string{"80/tcp"},
		Cmd:          []string{"serve", "--cache-file=/tmp/ntfy/cache.db"},
		Tmpfs:        map[string]string{"/tmp/ntfy": "rw"},
		WaitingFor: wait.ForHTTP("/v1/health").
			WithPort("80/tcp").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start ntfy container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "80")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &NtfyContainer{container: container, host: host, port: mappedPort.Int()}, nil
}

// GetHost returns the host:port the server listens on.
func (c *NtfyContainer) GetHost(_ context.Context) string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// PollMessages returns every cached message on topic.
func (c *NtfyContainer) PollMessages(ctx context.Context, topic string) ([]NtfyMessage, error) {
	url := fmt.Sprintf("http://%s/%s/json?poll=1", c.GetHost(ctx), topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll request failed with status %d", resp.StatusCode)
	}

	// One JSON message per line.
	var messages []NtfyMessage
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg NtfyMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("failed to parse message JSON: %w", err)
		}
		if msg.Message == "" && msg.ID == "" {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, scanner.Err()
}

// Terminate stops and removes the container.
func (c *NtfyContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
