package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Source of guild automod settings. Implementations may cache internally; callers treat every returned value as
// immutable.
type Provider interface {
	GetConfig(ctx context.Context, guildID string) (*GuildAutomodConfig, error)
}

// Provider which can also accept updates, eg from admin commands or the dashboard.
type Store interface {
	Provider
	PutConfig(ctx context.Context, cfg *GuildAutomodConfig) error
}

// In-process config store. Safe for concurrent use.
type MemProvider struct {
	mu      sync.RWMutex
	configs map[string]*GuildAutomodConfig
}

var _ Store = (*MemProvider)(nil)

func NewMemProvider() *MemProvider {
	return &MemProvider{
		configs: make(map[string]*GuildAutomodConfig),
	}
}

func (p *MemProvider) GetConfig(ctx context.Context, guildID string) (*GuildAutomodConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg, ok := p.configs[guildID]
	if !ok {
		d := Default(guildID)
		d.Prepare()
		return d, nil
	}
	return cfg, nil
}

// Stores a private copy of the config; later changes to the argument have no effect.
func (p *MemProvider) PutConfig(ctx context.Context, cfg *GuildAutomodConfig) error {
	if cfg.GuildID == "" {
		return fmt.Errorf("config is missing guild ID")
	}
	c := cfg.Clone()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[c.GuildID] = c
	return nil
}

// Replaces all stored configs at once.
func (p *MemProvider) replaceAll(configs map[string]*GuildAutomodConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = configs
}

// Read-only provider backed by a JSON file mapping guild IDs to settings.
type FileProvider struct {
	*MemProvider
	Path string
}

func NewFileProvider(path string) (*FileProvider, error) {
	fp := &FileProvider{
		MemProvider: NewMemProvider(),
		Path:        path,
	}
	if err := fp.Reload(); err != nil {
		return nil, err
	}
	return fp, nil
}

// Re-reads the backing file. On error the previously loaded configs stay in place.
func (fp *FileProvider) Reload() error {
	configs, err := LoadFileJSON(fp.Path)
	if err != nil {
		return err
	}
	fp.replaceAll(configs)
	return nil
}

func (fp *FileProvider) PutConfig(ctx context.Context, cfg *GuildAutomodConfig) error {
	return fmt.Errorf("file config provider is read-only")
}

// Parses a JSON file of the form `{"<guild-id>": {...settings...}}`. The guild ID field of each entry is set from
// its key. Configs are prepared but not validated.
func LoadFileJSON(p string) (map[string]*GuildAutomodConfig, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseJSON(raw)
}

func ParseJSON(raw []byte) (map[string]*GuildAutomodConfig, error) {
	var guilds map[string]*GuildAutomodConfig
	if err := json.Unmarshal(raw, &guilds); err != nil {
		return nil, fmt.Errorf("parsing automod config: %w", err)
	}
	out := make(map[string]*GuildAutomodConfig, len(guilds))
	for id, cfg := range guilds {
		if cfg == nil {
			continue
		}
		cfg.GuildID = id
		cfg.Prepare()
		out[id] = cfg
	}
	return out, nil
}
