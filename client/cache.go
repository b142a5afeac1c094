package client

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/multierr"

	"github.com/vipnode/ethrpc/transport"
)

// Cache shares one Client per transport kind and endpoint. Clients that are
// evicted from the cache are closed.
type Cache struct {
	mu      sync.Mutex
	clients *ttlcache.Cache[string, *Client]
	unwatch func()
	closed  bool
}

// NewCache returns a Cache whose clients expire after ttl of not being used.
// A ttl of zero keeps clients until the cache is closed.
func NewCache(ttl time.Duration) *Cache {
	clients := ttlcache.New[string, *Client](
		ttlcache.WithTTL[string, *Client](ttl),
	)
	unwatch := clients.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Client]) {
		logger.Debugf("closing cached client for %s", item.Key())
		if err := item.Value().Close(); err != nil {
			logger.Warningf("failed to close cached client for %s: %s", item.Key(), err)
		}
	})
	go clients.Start()
	return &Cache{
		clients: clients,
		unwatch: unwatch,
	}
}

func cacheKey(kind transport.Kind, cfg transport.Config) string {
	return kind.String() + ":" + endpointOf(kind, cfg)
}

// Get returns the cached client for the kind and endpoint of cfg, creating
// it with New if there is none. The rest of cfg is only used on creation.
// Clients are created without holding the cache, so a slow endpoint doesn't
// hold up the others; if two calls race to create the same client, the
// loser's is closed.
func (c *Cache) Get(ctx context.Context, kind transport.Kind, cfg transport.Config) (*Client, error) {
	key := cacheKey(kind, cfg)
	if client, err := c.lookup(key); client != nil || err != nil {
		return client, err
	}

	client, err := New(ctx, kind, cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		client.Close()
		return nil, transport.ErrClosed
	}
	if item := c.clients.Get(key); item != nil {
		c.mu.Unlock()
		client.Close()
		return item.Value(), nil
	}
	c.clients.Set(key, client, ttlcache.DefaultTTL)
	c.mu.Unlock()
	return client, nil
}

func (c *Cache) lookup(key string) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrClosed
	}
	if item := c.clients.Get(key); item != nil {
		return item.Value(), nil
	}
	return nil, nil
}

// Len returns the number of cached clients.
func (c *Cache) Len() int {
	return c.clients.Len()
}

// Close closes every cached client and stops the expiry loop.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.unwatch()
	var err error
	for _, item := range c.clients.Items() {
		err = multierr.Append(err, item.Value().Close())
	}
	c.clients.DeleteAll()
	c.clients.Stop()
	return err
}
