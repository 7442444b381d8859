package app

import (
	"context"
	"sync"

	"github.com/hostedraids/muster/internal/domain"
)

// CachedChannelConfig is a read-through cache over a ChannelConfig. Channel
// lookups happen on every event creation, so misses fall through to the
// backing store once and writes update the cache in place rather than
// leaving a stale entry behind.
type CachedChannelConfig struct {
	next domain.ChannelConfig

	mu    sync.RWMutex
	cache map[string]string
}

// Compile-time check: CachedChannelConfig implements domain.ChannelConfig.
var _ domain.ChannelConfig = (*CachedChannelConfig)(nil)

// NewCachedChannelConfig wraps the given config with a read-through cache.
func NewCachedChannelConfig(next domain.ChannelConfig) *CachedChannelConfig {
	return &CachedChannelConfig{
		next:  next,
		cache: make(map[string]string),
	}
}

// EventsChannel returns the guild's events channel, consulting the backing
// store only on a cache miss. Not-found results are not cached: a guild
// that configures its channel moments later should see the write.
func (c *CachedChannelConfig) EventsChannel(ctx context.Context, guildID string) (string, error) {
	c.mu.RLock()
	channelID, ok := c.cache[guildID]
	c.mu.RUnlock()
	if ok {
		return channelID, nil
	}

	channelID, err := c.next.EventsChannel(ctx, guildID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[guildID] = channelID
	c.mu.Unlock()

	return channelID, nil
}

// SetEventsChannel stores the guild's events channel and refreshes the
// cached entry.
func (c *CachedChannelConfig) SetEventsChannel(ctx context.Context, guildID, channelID string) error {
	if err := c.next.SetEventsChannel(ctx, guildID, channelID); err != nil {
		return err
	}

	c.mu.Lock()
	c.cache[guildID] = channelID
	c.mu.Unlock()

	return nil
}
