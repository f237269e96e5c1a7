package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys. This
// isolates the cursor store, the ledger store, and the reorg window
// snapshot within a single underlying database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

// prefixed returns key with the prefix prepended.
func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// prefixTxn rewrites keys on the way into the inner transaction and
// strips the prefix on the way out.
type prefixTxn struct {
	inner  Txn
	prefix []byte
}

func (t *prefixTxn) key(key []byte) []byte {
	out := make([]byte, len(t.prefix)+len(key))
	copy(out, t.prefix)
	copy(out[len(t.prefix):], key)
	return out
}

func (t *prefixTxn) Get(key []byte) ([]byte, error) {
	return t.inner.Get(t.key(key))
}

func (t *prefixTxn) Put(key, value []byte) error {
	return t.inner.Put(t.key(key), value)
}

func (t *prefixTxn) Delete(key []byte) error {
	return t.inner.Delete(t.key(key))
}

func (t *prefixTxn) Has(key []byte) (bool, error) {
	return t.inner.Has(t.key(key))
}

func (t *prefixTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return t.inner.ForEach(t.key(prefix), func(key, value []byte) error {
		return fn(key[len(t.prefix):], value)
	})
}

// View runs fn in a read-only transaction on the inner DB.
func (p *PrefixDB) View(fn func(Txn) error) error {
	return p.inner.View(func(txn Txn) error {
		return fn(&prefixTxn{inner: txn, prefix: p.prefix})
	})
}

// Update runs fn in a read-write transaction on the inner DB.
func (p *PrefixDB) Update(fn func(Txn) error) error {
	return p.inner.Update(func(txn Txn) error {
		return fn(&prefixTxn{inner: txn, prefix: p.prefix})
	})
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

// ForEach iterates over all keys with the given prefix (within the
// PrefixDB namespace). Callers see keys with the namespace stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	fullPrefix := p.prefixed(prefix)
	return p.inner.ForEach(fullPrefix, func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// Close is a no-op; the outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}
