package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
)

// Client holds the Pub/Sub connection for notification fan-out. The topic
// must already exist; this service never creates infrastructure.
type Client struct {
	client       *pubsub.Client
	topic        string
	subscription string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	topic := resourceName(project, "topics", cfg.NotificationTopic)
	if topic == "" {
		return nil, errors.New("pubsub notification topic is required")
	}

	conn, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:       conn,
		topic:        topic,
		subscription: resourceName(project, "subscriptions", cfg.NotificationSubscription),
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        c.topic,
			"subscription": c.subscription,
		}), "pubsub ready")
	}
	return c, nil
}

// clientOptions prefers inline credentials, then a key file, then ADC.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// NotificationPublisher returns nil on a nil client.
func (c *Client) NotificationPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Publisher(c.topic)
}

// NotificationSubscription returns the subscriber this instance relays
// notices from, or nil when none is configured. Every API instance needs its
// own subscription so each hub sees every notice.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil || c.subscription == "" {
		return nil
	}
	return c.client.Subscriber(c.subscription)
}

// Ping checks the topic and, when set, the subscription still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	if err := describe("topic", c.topic, err); err != nil {
		return err
	}
	if c.subscription == "" {
		return nil
	}
	_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscription})
	return describe("subscription", c.subscription, err)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %s: %w", kind, name, err)
	}
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Fully
// qualified names pass through, even for another project.
func resourceName(project, kind, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	return "projects/" + project + "/" + kind + "/" + id
}
