package tests

import (
	"context"
	"sync"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
)

// TxMapDatastore is an in-memory TxnDatastore for tests.
type TxMapDatastore struct {
	*ds.MapDatastore
	lock sync.RWMutex
}

// NewTxMapDatastore returns a new TxMapDatastore.
func NewTxMapDatastore() *TxMapDatastore {
	return &TxMapDatastore{MapDatastore: ds.NewMapDatastore()}
}

// Get returns the value for key.
func (d *TxMapDatastore) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.MapDatastore.Get(ctx, key)
}

// Has reports whether key exists.
func (d *TxMapDatastore) Has(ctx context.Context, key ds.Key) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.MapDatastore.Has(ctx, key)
}

// Put sets the value for key.
func (d *TxMapDatastore) Put(ctx context.Context, key ds.Key, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.MapDatastore.Put(ctx, key, data)
}

// Delete removes key.
func (d *TxMapDatastore) Delete(ctx context.Context, key ds.Key) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.MapDatastore.Delete(ctx, key)
}

// Query runs q against the datastore.
func (d *TxMapDatastore) Query(ctx context.Context, q dsq.Query) (dsq.Results, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.MapDatastore.Query(ctx, q)
}

// NewTransaction creates a new transaction. Writes are buffered until
// Commit, which applies them atomically.
func (d *TxMapDatastore) NewTransaction(_ context.Context, _ bool) (ds.Txn, error) {
	return &simpleTx{target: d, ops: map[ds.Key]op{}}, nil
}

type op struct {
	delete bool
	value  []byte
}

// simpleTx buffers writes over the target datastore. It doesn't detect
// conflicts; tests run operations serially, like the engine does.
type simpleTx struct {
	target *TxMapDatastore
	lock   sync.Mutex
	ops    map[ds.Key]op
}

func (t *simpleTx) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if o, ok := t.ops[key]; ok {
		if o.delete {
			return nil, ds.ErrNotFound
		}
		return o.value, nil
	}
	return t.target.Get(ctx, key)
}

func (t *simpleTx) Has(ctx context.Context, key ds.Key) (bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if o, ok := t.ops[key]; ok {
		return !o.delete, nil
	}
	return t.target.Has(ctx, key)
}

func (t *simpleTx) GetSize(ctx context.Context, key ds.Key) (int, error) {
	v, err := t.Get(ctx, key)
	if err != nil {
		return -1, err
	}
	return len(v), nil
}

func (t *simpleTx) Query(ctx context.Context, q dsq.Query) (dsq.Results, error) {
	// Pending writes are not reflected, matching the read-your-committed
	// usage in the stores.
	return t.target.Query(ctx, q)
}

func (t *simpleTx) Put(_ context.Context, key ds.Key, val []byte) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.ops[key] = op{value: val}
	return nil
}

func (t *simpleTx) Delete(_ context.Context, key ds.Key) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.ops[key] = op{delete: true}
	return nil
}

func (t *simpleTx) Commit(ctx context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	for key, o := range t.ops {
		var err error
		if o.delete {
			err = t.target.Delete(ctx, key)
		} else {
			err = t.target.Put(ctx, key, o.value)
		}
		if err != nil {
			return err
		}
	}
	t.ops = map[ds.Key]op{}
	return nil
}

func (t *simpleTx) Discard(_ context.Context) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.ops = map[ds.Key]op{}
}
