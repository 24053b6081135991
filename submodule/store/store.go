package store

import (
	"encoding/json"

	"golang.org/x/xerrors"

	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/types"
	kvstore "github.com/talentchain/go-walletd/lib/types/store"
)

var logger = logging.Logger("sessionstore")

// SessionStore persists exactly one session descriptor under a fixed key.
// No history: Save overwrites, Clear removes.
type SessionStore struct {
	ds kvstore.KVStore
}

func NewSessionStore(ds kvstore.KVStore) *SessionStore {
	return &SessionStore{ds: ds}
}

// Load returns the persisted descriptor, or (nil, nil) when absent. A value
// that fails to parse is treated as absent and removed so it cannot keep
// failing on every startup.
func (s *SessionStore) Load() (*types.SessionRecord, error) {
	val, err := s.ds.Get(types.SessionKey)
	if err != nil {
		return nil, xerrors.Errorf("read session record: %w", err)
	}
	if len(val) == 0 {
		return nil, nil
	}

	rec := new(types.SessionRecord)
	if err := json.Unmarshal(val, rec); err != nil {
		logger.Warnf("discarding corrupt session record: %s", err)
		if derr := s.Clear(); derr != nil {
			logger.Errorf("failed to clear corrupt session record: %s", derr)
		}
		return nil, nil
	}

	return rec, nil
}

// Save overwrites the persisted descriptor.
func (s *SessionStore) Save(rec *types.SessionRecord) error {
	if rec == nil {
		return xerrors.New("nil session record")
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return xerrors.Errorf("encode session record: %w", err)
	}

	if err := s.ds.Put(types.SessionKey, val); err != nil {
		return xerrors.Errorf("write session record: %w", err)
	}

	return s.ds.Sync()
}

// Clear removes the persisted descriptor; clearing an absent record is fine.
func (s *SessionStore) Clear() error {
	return s.ds.Delete(types.SessionKey)
}
