package config

import (
	"context"
	"sync"

	"github.com/talentchain/go-walletd/lib/repo"
)

// ConfigModule is plumbing for reading and writing the repo config over the
// API. Writes go through the validated dotted-key setter and are persisted
// immediately.
type ConfigModule struct {
	repo repo.Repo
	lock sync.Mutex
}

// NewConfigModule returns a new ConfigModule over r.
func NewConfigModule(r repo.Repo) *ConfigModule {
	return &ConfigModule{repo: r}
}

// ConfigSet sets a value in config.
func (s *ConfigModule) ConfigSet(ctx context.Context, dottedKey string, jsonString string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	cfg := s.repo.Config()
	if err := cfg.Set(dottedKey, jsonString); err != nil {
		return err
	}

	return s.repo.ReplaceConfig(cfg)
}

// ConfigGet gets a value from config.
func (s *ConfigModule) ConfigGet(ctx context.Context, dottedKey string) (interface{}, error) {
	return s.repo.Config().Get(dottedKey)
}
