// Package processor retrieves data from the payment processor API that
// webhook payloads sometimes leave out.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

type Client struct {
	api   *client.API
	cache *cache.Cache
}

// New creates a client authenticated with secretKey. Lookups are cached for
// ttl. backends may be nil to talk to the live API.
func New(secretKey string, ttl time.Duration, backends *stripe.Backends) *Client {
	api := &client.API{}
	api.Init(secretKey, backends)

	return &Client{
		api:   api,
		cache: cache.New(ttl, 2*ttl),
	}
}

// ChargeForPaymentIntent returns the id of the latest charge of a payment
// intent, or "" when it has none yet.
func (c *Client) ChargeForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	if v, ok := c.cache.Get(paymentIntentID); ok {
		return v.(string), nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return "", fmt.Errorf("retrieving payment intent %s: %w", paymentIntentID, err)
	}

	if pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return "", nil
	}

	c.cache.Set(paymentIntentID, pi.LatestCharge.ID, cache.DefaultExpiration)

	return pi.LatestCharge.ID, nil
}
