package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/internal/stream"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Sink delivers one notification to one destination. Implementations are
// best-effort; the dispatcher records failures but never retries on the
// request path.
type Sink interface {
	Publish(ctx context.Context, n *types.Notification) error
	Name() string
}

// TopicSink publishes notifications onto a stream topic.
type TopicSink struct {
	topic     string
	publisher Publisher
}

// NewTopicSink creates a sink for one notification topic.
func NewTopicSink(topic string, publisher Publisher) *TopicSink {
	return &TopicSink{topic: topic, publisher: publisher}
}

func (s *TopicSink) Name() string { return "topic:" + s.topic }

func (s *TopicSink) Publish(ctx context.Context, n *types.Notification) error {
	rec, err := stream.NotificationRecord(s.topic, n)
	if err != nil {
		return err
	}
	return s.publisher.PublishSync(ctx, rec)
}

// WebhookSink POSTs notifications to a tenant-configured URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink for one webhook URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: config.WebhookTimeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook:" + s.url }

func (s *WebhookSink) Publish(ctx context.Context, n *types.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
