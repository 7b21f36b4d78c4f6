// Package pubsub wraps the Pub/Sub v2 client used to relay outbox events.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dukalink-backend/pkg/config"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub domain topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns one publisher per topic. Publishers are created lazily, share
// the configured batching and ordering settings and are flushed on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	logg      *logger.Logger

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and checks the domain topic. Against the emulator
// a missing topic is created instead of failing startup.
// PUBSUB_EMULATOR_HOST is honored by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.DomainTopic) == "" {
		return nil, errTopicRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		cfg:        cfg,
		logg:       logg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.checkTopic(ctx, cfg.DomainTopic, cfg.EmulatorHost != ""); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":  gcp.ProjectID,
			"topic":    cfg.DomainTopic,
			"emulator": cfg.EmulatorHost != "",
			"ordering": cfg.MessageOrdering,
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, name string, create bool) error {
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	switch {
	case err == nil:
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("checking topic %q: %w", name, err)
	case !create:
		return fmt.Errorf("topic %q does not exist", name)
	}

	_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: fullName})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating topic %q: %w", name, err)
	}
	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "topic", fullName), "created missing pubsub topic")
	}
	return nil
}

// Publisher returns the shared publisher for a topic id or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[fullName]; ok {
		return pub
	}
	pub := c.client.Publisher(fullName)
	pub.EnableMessageOrdering = c.cfg.MessageOrdering
	if c.cfg.BatchDelay > 0 {
		pub.PublishSettings.DelayThreshold = c.cfg.BatchDelay
	}
	c.publishers[fullName] = pub
	return pub
}

// OrderingEnabled reports whether messages must carry an ordering key.
func (c *Client) OrderingEnabled() bool {
	return c != nil && c.cfg.MessageOrdering
}

// Ping verifies Pub/Sub connectivity by checking the domain topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopic(ctx, c.cfg.DomainTopic, false)
}

// Close flushes every publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}
