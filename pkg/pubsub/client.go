package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

var errNotInitialized = errors.New("pubsub client not initialized")

// topicLookup reports nil when the fully qualified topic exists.
type topicLookup func(ctx context.Context, fullName string) error

// Client owns the Pub/Sub connection and the set of topics the outbox
// relay may publish to. Topics are never created here; a missing topic is
// a deploy error surfaced at boot and by Ping.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	lookup    topicLookup
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics, err := resolveTopics(projectID, cfg.OffersTopic, cfg.PaymentsTopic)
	if err != nil {
		return nil, err
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    raw,
		projectID: projectID,
		topics:    topics,
		lookup: func(ctx context.Context, fullName string) error {
			_, err := raw.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
			return err
		},
	}
	if err := c.verifyTopics(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	}
	return c, nil
}

// resolveTopics qualifies and dedupes the configured topic names.
func resolveTopics(projectID string, names ...string) ([]string, error) {
	var out []string
	for _, name := range names {
		full := topicResourceName(projectID, name)
		if full != "" && !slices.Contains(out, full) {
			out = append(out, full)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("pubsub topic name is required")
	}
	return out, nil
}

func (c *Client) verifyTopics(ctx context.Context) error {
	for _, topic := range c.topics {
		err := c.lookup(ctx, topic)
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", topic)
		default:
			return fmt.Errorf("checking topic %q: %w", topic, err)
		}
	}
	return nil
}

// Publisher returns a handle for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping re-checks that every configured topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.lookup == nil {
		return errNotInitialized
	}
	return c.verifyTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if name == "" || projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
