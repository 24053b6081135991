package repo

import (
	"github.com/talentchain/go-walletd/config"
	"github.com/talentchain/go-walletd/lib/types/store"
)

// Repo is a representation of all persistent data in a walletd instance.
type Repo interface {
	Config() *config.Config

	// ReplaceConfig replaces the current config, with the newly passed in one.
	ReplaceConfig(cfg *config.Config) error

	// MetaStore holds the persisted session descriptor and other small
	// bookkeeping records.
	MetaStore() store.KVStore

	// SetAPIAddr sets the address of the running jsonrpc API.
	SetAPIAddr(maddr string) error

	// APIAddr returns the address of the running API.
	APIAddr() (string, error)

	// SetAPIToken sets the api token.
	SetAPIToken(token []byte) error

	// APIToken returns the api token.
	APIToken() ([]byte, error)

	// Path returns the repo path.
	Path() (string, error)

	// Close shuts down the repo.
	Close() error
}
