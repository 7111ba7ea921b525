package identity

import (
	"context"
	"time"

	discordpkg "github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/jellydator/ttlcache/v3"
)

type memberResolver interface {
	ResolveMember(guildID, userID string) (discordpkg.Member, error)
}

// CachedDirectory answers identity lookups from guild members and keeps each
// answer for the configured TTL.
type CachedDirectory struct {
	resolver memberResolver
	guildID  string
	cache    *ttlcache.Cache[string, discordpkg.Member]
}

func NewCachedDirectory(resolver memberResolver, guildID string, ttl time.Duration) *CachedDirectory {
	cache := ttlcache.New[string, discordpkg.Member](
		ttlcache.WithTTL[string, discordpkg.Member](ttl),
		ttlcache.WithDisableTouchOnHit[string, discordpkg.Member](),
	)
	go cache.Start()
	return &CachedDirectory{resolver: resolver, guildID: guildID, cache: cache}
}

func (d *CachedDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	m, err := d.lookup(userID)
	if err != nil {
		return "", err
	}
	return m.DisplayName, nil
}

func (d *CachedDirectory) IsAutomated(ctx context.Context, userID string) (bool, error) {
	m, err := d.lookup(userID)
	if err != nil {
		return false, err
	}
	return m.IsBot, nil
}

func (d *CachedDirectory) Stop() {
	d.cache.Stop()
}

func (d *CachedDirectory) lookup(userID string) (discordpkg.Member, error) {
	if item := d.cache.Get(userID); item != nil {
		return item.Value(), nil
	}
	m, err := d.resolver.ResolveMember(d.guildID, userID)
	if err != nil {
		return discordpkg.Member{}, err
	}
	d.cache.Set(userID, m, ttlcache.DefaultTTL)
	return m, nil
}
