// Package ordersync keeps the local order ledger and the shared Redis store
// converged. Two loops run concurrently: an outbound change-detection loop
// pushing local orders into a shared hash, and an inbound loop applying
// remote orders back into the ledger.
package ordersync

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trading-sync/internal/orders"
)

// Ledger is the slice of the repository the sync manager needs.
type Ledger interface {
	GetActiveOrders(ctx context.Context) ([]*orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	SaveOrder(ctx context.Context, o *orders.Order) error
}

// Store is the shared order store the two instances replicate through.
type Store interface {
	Ping(ctx context.Context) error
	PublishOrder(ctx context.Context, orderID string, payload []byte) error
	DeleteOrder(ctx context.Context, orderID string) error
	FetchOrders(ctx context.Context) (map[string]string, error)
}

// RedisStore implements Store on a single Redis hash keyed by order
// identifier.
type RedisStore struct {
	client    *redis.Client
	ordersKey string
}

// NewRedisStore creates a store over the hash `<namespace>:account:orders`.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{
		client:    client,
		ordersKey: fmt.Sprintf("%s:account:orders", namespace),
	}
}

// Ping verifies shared-store connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PublishOrder writes one serialized order into the shared hash.
func (s *RedisStore) PublishOrder(ctx context.Context, orderID string, payload []byte) error {
	return s.client.HSet(ctx, s.ordersKey, orderID, payload).Err()
}

// DeleteOrder removes one order from the shared hash.
func (s *RedisStore) DeleteOrder(ctx context.Context, orderID string) error {
	return s.client.HDel(ctx, s.ordersKey, orderID).Err()
}

// FetchOrders returns the full shared hash, field = order id, value = wire
// JSON.
func (s *RedisStore) FetchOrders(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.ordersKey).Result()
}
