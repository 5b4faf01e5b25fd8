package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// The vault uses one PrefixDB per on-disk format version, the wallet list
// and the TonConnect registry each get their own namespace.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: clone(prefix)}
}

// Prefix returns the namespace prefix.
func (p *PrefixDB) Prefix() []byte {
	return clone(p.prefix)
}

func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over keys with the given prefix inside the namespace.
// Keys passed to fn have the namespace prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return p.inner.ForEach(p.prefixed(prefix), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// Keys returns every key in the namespace, prefix stripped, in iteration order.
func (p *PrefixDB) Keys() ([][]byte, error) {
	var keys [][]byte
	err := p.ForEach(nil, func(key, _ []byte) error {
		keys = append(keys, clone(key))
		return nil
	})
	return keys, err
}

// DeleteAll removes all keys under this namespace in one batch.
func (p *PrefixDB) DeleteAll() error {
	keys, err := p.Keys()
	if err != nil {
		return err
	}
	b := p.NewBatch()
	for _, key := range keys {
		if err := b.Delete(key); err != nil {
			return err
		}
	}
	return b.Commit()
}

// Close is a no-op; the outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch creates a batch that prepends the prefix to all keys and
// delegates to the inner DB's batch.
func (p *PrefixDB) NewBatch() Batch {
	return &prefixBatch{inner: NewBatch(p.inner), db: p}
}

type prefixBatch struct {
	inner Batch
	db    *PrefixDB
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(pb.db.prefixed(key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(pb.db.prefixed(key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

// MultiBatch spans several namespaces of the same inner DB so that writes to
// different PrefixDBs commit atomically together.
type MultiBatch struct {
	inner Batch
}

// NewMultiBatch creates a batch over inner, the DB every namespace wraps.
func NewMultiBatch(inner DB) *MultiBatch {
	return &MultiBatch{inner: NewBatch(inner)}
}

// Put stages a write of key into namespace ns.
func (mb *MultiBatch) Put(ns *PrefixDB, key, value []byte) error {
	return mb.inner.Put(ns.prefixed(key), value)
}

// Delete stages a delete of key from namespace ns.
func (mb *MultiBatch) Delete(ns *PrefixDB, key []byte) error {
	return mb.inner.Delete(ns.prefixed(key))
}

// Commit applies every staged operation.
func (mb *MultiBatch) Commit() error {
	return mb.inner.Commit()
}
