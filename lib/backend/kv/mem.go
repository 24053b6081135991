package kv

import (
	"strings"
	"sync"

	"github.com/talentchain/go-walletd/lib/types/store"
)

var _ store.KVStore = (*MemStore)(nil)

// MemStore is an in-memory kv store used by tests and the memory repo.
type MemStore struct {
	lk sync.RWMutex
	m  map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

func (ms *MemStore) Put(key, value []byte) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	ms.m[string(key)] = v
	return nil
}

func (ms *MemStore) Get(key []byte) ([]byte, error) {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	v, ok := ms.m[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (ms *MemStore) Has(key []byte) (bool, error) {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	_, ok := ms.m[string(key)]
	return ok, nil
}

func (ms *MemStore) Delete(key []byte) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	delete(ms.m, string(key))
	return nil
}

func (ms *MemStore) Iter(prefix []byte, fn func(k, v []byte) error) int64 {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	var total int64
	for k, v := range ms.m {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if err := fn([]byte(k), v); err == nil {
			total++
		}
	}
	return total
}

func (ms *MemStore) IterKeys(prefix []byte, fn func(k []byte) error) int64 {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	var total int64
	for k := range ms.m {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if err := fn([]byte(k)); err == nil {
			total++
		}
	}
	return total
}

func (ms *MemStore) Size() int64 {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	var total int64
	for _, v := range ms.m {
		total += int64(len(v))
	}
	return total
}

func (ms *MemStore) Sync() error { return nil }

func (ms *MemStore) Close() error { return nil }
