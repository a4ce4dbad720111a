package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	dedupPrefix = "alertdedup/"
	statePrefix = "state/"

	controllerStateKey = statePrefix + "controller"
)

type Client struct {
	client redis.Client
}

func NewRedisClient(redisURL string, tlsEnabled bool) (Client, error) {
	redisClient := Client{}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return redisClient, err
	}
	if tlsEnabled {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	redisClient.client = *redis.NewClient(options)

	return redisClient, nil
}

// Seen records the alert key with the window as TTL. Returns true if the
// key was already present, meaning a matching alert was delivered within
// the window. Implements alerting.Deduper.
func (c *Client) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := c.client.SetNX(ctx, dedupPrefix+key, time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// WriteControllerState mirrors the controller state for external dashboards.
func (c *Client) WriteControllerState(ctx context.Context, state string) error {
	return c.client.Set(ctx, controllerStateKey, state, 0).Err()
}
