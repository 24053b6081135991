package repo

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/config"
	"github.com/talentchain/go-walletd/lib/backend/kv"
	"github.com/talentchain/go-walletd/lib/types/store"
)

// MemRepo is an in-memory implementation of the repo interface, used by tests.
type MemRepo struct {
	// lk guards the config
	lk sync.RWMutex
	C  *config.Config

	Meta *kv.MemStore

	apiAddress string
	token      []byte
}

var _ Repo = (*MemRepo)(nil)

// NewInMemoryRepo makes a new instance of MemRepo
func NewInMemoryRepo() *MemRepo {
	return &MemRepo{
		C:    config.NewDefaultConfig(),
		Meta: kv.NewMemStore(),
	}
}

func (mr *MemRepo) Config() *config.Config {
	mr.lk.RLock()
	defer mr.lk.RUnlock()

	return mr.C
}

// ReplaceConfig replaces the current config with the newly passed in one.
func (mr *MemRepo) ReplaceConfig(cfg *config.Config) error {
	mr.lk.Lock()
	defer mr.lk.Unlock()

	mr.C = cfg
	return nil
}

func (mr *MemRepo) MetaStore() store.KVStore {
	return mr.Meta
}

func (mr *MemRepo) SetAPIAddr(maddr string) error {
	mr.apiAddress = maddr
	return nil
}

func (mr *MemRepo) APIAddr() (string, error) {
	if mr.apiAddress == "" {
		return "", xerrors.New("no api address set")
	}
	return mr.apiAddress, nil
}

func (mr *MemRepo) SetAPIToken(token []byte) error {
	mr.token = token
	return nil
}

func (mr *MemRepo) APIToken() ([]byte, error) {
	if len(mr.token) == 0 {
		return nil, xerrors.New("no api token set")
	}
	return mr.token, nil
}

func (mr *MemRepo) Path() (string, error) {
	return "", nil
}

func (mr *MemRepo) Close() error {
	return mr.Meta.Close()
}
