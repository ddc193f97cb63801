// Package settings holds the per-guild moderation configuration in memory,
// loading each guild from the backing store at most once at a time.
package settings

import (
	"context"
	"fmt"

	"sentinel-automod/internal/models"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"
)

// Store is the durable side of the cache. LoadSettings returns nil, nil for a
// guild that has never been configured.
type Store interface {
	LoadSettings(ctx context.Context, guildID string) (*models.GuildModerationSettings, error)
	SaveSettings(ctx context.Context, settings *models.GuildModerationSettings) error
}

type entry struct {
	// nil means the guild is known to be unconfigured
	settings *models.GuildModerationSettings
}

// Cache entries never expire; admin writes go through Set and external
// changes are signalled with Invalidate.
type Cache struct {
	store    Store
	entries  *xsync.Map[string, entry]
	versions *xsync.Map[string, uint64]
	loads    singleflight.Group
}

func New(store Store) *Cache {
	return &Cache{
		store:    store,
		entries:  xsync.NewMap[string, entry](),
		versions: xsync.NewMap[string, uint64](),
	}
}

// Get returns the guild's settings, or nil when the guild has none. Load
// errors are returned to the caller and not cached.
func (c *Cache) Get(ctx context.Context, guildID string) (*models.GuildModerationSettings, error) {
	if cached, ok := c.entries.Load(guildID); ok {
		return cached.settings, nil
	}

	value, err, _ := c.loads.Do(guildID, func() (any, error) {
		if cached, ok := c.entries.Load(guildID); ok {
			return cached.settings, nil
		}
		version := c.version(guildID)
		loaded, err := c.store.LoadSettings(ctx, guildID)
		if err != nil {
			return nil, fmt.Errorf("load settings for %s: %w", guildID, err)
		}
		c.fill(guildID, version, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*models.GuildModerationSettings), nil
}

// Set writes through to the store, then replaces the cached value.
func (c *Cache) Set(ctx context.Context, settings *models.GuildModerationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	stored := *settings
	if err := c.store.SaveSettings(ctx, &stored); err != nil {
		return fmt.Errorf("save settings for %s: %w", settings.GuildID, err)
	}
	c.bump(stored.GuildID)
	c.entries.Store(stored.GuildID, entry{settings: &stored})
	return nil
}

// Invalidate drops the cached value so the next Get reloads from the store.
func (c *Cache) Invalidate(guildID string) {
	c.bump(guildID)
	c.entries.Delete(guildID)
}

func (c *Cache) Len() int {
	return c.entries.Size()
}

func (c *Cache) version(guildID string) uint64 {
	v, _ := c.versions.Load(guildID)
	return v
}

func (c *Cache) bump(guildID string) {
	c.versions.Compute(guildID, func(old uint64, _ bool) (uint64, xsync.ComputeOp) {
		return old + 1, xsync.UpdateOp
	})
}

// fill stores a loaded value unless a Set or Invalidate happened since the
// load started; the load result may predate that write.
func (c *Cache) fill(guildID string, version uint64, loaded *models.GuildModerationSettings) {
	c.entries.Compute(guildID, func(old entry, exists bool) (entry, xsync.ComputeOp) {
		if exists || c.version(guildID) != version {
			return old, xsync.CancelOp
		}
		return entry{settings: loaded}, xsync.UpdateOp
	})
}
