package store

type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Size() int64
	Close() error
}

type KVStore interface {
	Store

	Iter(prefix []byte, fn func(k, v []byte) error) int64
	IterKeys(prefix []byte, fn func(k []byte) error) int64

	Sync() error
}
