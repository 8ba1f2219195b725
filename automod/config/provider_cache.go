package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Wraps a slower Provider (eg, a database or remote API) with an in-process expiring LRU.
//
// Errors from the inner provider are never cached.
type CachingProvider struct {
	Inner Provider
	Data  *expirable.LRU[string, *GuildAutomodConfig]
}

var _ Provider = (*CachingProvider)(nil)

func NewCachingProvider(inner Provider, capacity int, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		Inner: inner,
		Data:  expirable.NewLRU[string, *GuildAutomodConfig](capacity, nil, ttl),
	}
}

func (p *CachingProvider) GetConfig(ctx context.Context, guildID string) (*GuildAutomodConfig, error) {
	if cfg, ok := p.Data.Get(guildID); ok {
		return cfg, nil
	}
	cfg, err := p.Inner.GetConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	p.Data.Add(guildID, cfg)
	return cfg, nil
}

// Writes through to the inner provider when it accepts updates, and drops the cached copy.
func (p *CachingProvider) PutConfig(ctx context.Context, cfg *GuildAutomodConfig) error {
	defer p.Data.Remove(cfg.GuildID)
	if st, ok := p.Inner.(Store); ok {
		return st.PutConfig(ctx, cfg)
	}
	return fmt.Errorf("config provider does not accept updates")
}

// Forgets any cached copy, so the next lookup goes to the inner provider.
func (p *CachingProvider) Purge(guildID string) {
	p.Data.Remove(guildID)
}
