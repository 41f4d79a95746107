package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lavavarshney/Library-Management-System/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		kind, id, want string
	}{
		{"topics", "notices", "projects/library-dev/topics/notices"},
		{"topics", "projects/other/topics/notices", "projects/other/topics/notices"},
		{"subscriptions", " api-1 ", "projects/library-dev/subscriptions/api-1"},
		{"subscriptions", "", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resourceName("library-dev", tc.kind, tc.id), "%s %q", tc.kind, tc.id)
	}
}

func TestNilClientIsInert(t *testing.T) {
	var c *Client
	assert.Nil(t, c.NotificationPublisher())
	assert.Nil(t, c.NotificationSubscription())
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{NotificationTopic: "t"}, nil)
	assert.ErrorContains(t, err, "project id")

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	assert.ErrorContains(t, err, "topic")
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/k.json"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/k.json"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestDescribe(t *testing.T) {
	assert.NoError(t, describe("topic", "t", nil))
	assert.ErrorContains(t, describe("topic", "t", status.Error(codes.NotFound, "gone")), "does not exist")
	cause := errors.New("unavailable")
	assert.ErrorIs(t, describe("topic", "t", cause), cause)
}
