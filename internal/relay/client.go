// Package relay wraps the go-nostr relay connection with retry, subscription
// and publish plumbing shared by the feed, engagement and thread components.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/pictofeed/internal/apperr"
	"github.com/sandwichfarm/pictofeed/internal/config"
	"github.com/sandwichfarm/pictofeed/internal/ops"
)

// Client is a connection to a single relay.
type Client struct {
	relay *nostr.Relay
	url   string
	log   *ops.Logger
}

// Connect dials the configured relay, retrying per the backoff policy. It
// returns apperr.ErrConnectionFailed once every attempt is exhausted.
func Connect(ctx context.Context, cfg *config.Relay, log *ops.Logger) (*Client, error) {
	backoffs := cfg.Policy.BackoffMs
	if len(backoffs) == 0 {
		backoffs = []int{500, 1500, 5000}
	}

	var lastErr error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		if attempt > 0 {
			delay := time.Duration(backoffs[attempt-1]) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		dialCtx := ctx
		if cfg.Policy.ConnectTimeoutMs > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Policy.ConnectTimeoutMs)*time.Millisecond)
			relay, err := nostr.RelayConnect(dialCtx, cfg.URL)
			cancel()
			if err == nil {
				log.LogRelayConnection(cfg.URL, true, nil)
				return &Client{relay: relay, url: cfg.URL, log: log}, nil
			}
			lastErr = err
		} else {
			relay, err := nostr.RelayConnect(dialCtx, cfg.URL)
			if err == nil {
				log.LogRelayConnection(cfg.URL, true, nil)
				return &Client{relay: relay, url: cfg.URL, log: log}, nil
			}
			lastErr = err
		}
		log.LogRelayConnection(cfg.URL, false, lastErr)
	}

	return nil, fmt.Errorf("%w: %s: %v", apperr.ErrConnectionFailed, cfg.URL, lastErr)
}

// Subscribe opens a REQ with the given filters.
func (c *Client) Subscribe(ctx context.Context, filters []nostr.Filter) (*Subscription, error) {
	sub, err := c.relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrSubscriptionFailed, err)
	}
	return NewSubscription(sub.Events, sub.EndOfStoredEvents, sub.Unsub), nil
}

// Publish sends a signed event to the relay and waits for the OK response.
func (c *Client) Publish(ctx context.Context, ev nostr.Event) error {
	if err := c.relay.Publish(ctx, ev); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrPublishRejected, err)
	}
	return nil
}

// URL returns the relay URL this client is connected to.
func (c *Client) URL() string { return c.url }

// Close tears down the websocket connection.
func (c *Client) Close() error {
	c.log.LogRelayConnection(c.url, false, nil)
	return c.relay.Close()
}
