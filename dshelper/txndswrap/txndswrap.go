package txndswrap

import (
	"context"

	ds "github.com/ipfs/go-datastore"
	ktds "github.com/ipfs/go-datastore/keytransform"
	dsq "github.com/ipfs/go-datastore/query"
)

// Wrap namespaces a TxnDatastore under prefix, transactions included.
func Wrap(child ds.TxnDatastore, prefix string) ds.TxnDatastore {
	t := ktds.PrefixTransform{Prefix: ds.NewKey(prefix)}
	return &wrapped{
		Datastore: ktds.Wrap(child, t),
		child:     child,
		t:         t,
	}
}

type wrapped struct {
	*ktds.Datastore
	child ds.TxnDatastore
	t     ktds.KeyTransform
}

var _ ds.TxnDatastore = (*wrapped)(nil)

func (w *wrapped) NewTransaction(ctx context.Context, readOnly bool) (ds.Txn, error) {
	txn, err := w.child.NewTransaction(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	return &wrappedTxn{txn: txn, t: w.t}, nil
}

type wrappedTxn struct {
	txn ds.Txn
	t   ktds.KeyTransform
}

var _ ds.Txn = (*wrappedTxn)(nil)

func (t *wrappedTxn) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	return t.txn.Get(ctx, t.t.ConvertKey(key))
}

func (t *wrappedTxn) Has(ctx context.Context, key ds.Key) (bool, error) {
	return t.txn.Has(ctx, t.t.ConvertKey(key))
}

func (t *wrappedTxn) GetSize(ctx context.Context, key ds.Key) (int, error) {
	return t.txn.GetSize(ctx, t.t.ConvertKey(key))
}

func (t *wrappedTxn) Query(ctx context.Context, q dsq.Query) (dsq.Results, error) {
	nq := q
	nq.Prefix = t.t.ConvertKey(ds.NewKey(q.Prefix)).String()
	res, err := t.txn.Query(ctx, nq)
	if err != nil {
		return nil, err
	}
	return dsq.ResultsFromIterator(q, dsq.Iterator{
		Next: func() (dsq.Result, bool) {
			r, ok := res.NextSync()
			if !ok {
				return dsq.Result{}, false
			}
			if r.Error == nil {
				r.Key = t.t.InvertKey(ds.RawKey(r.Key)).String()
			}
			return r, true
		},
		Close: func() error {
			return res.Close()
		},
	}), nil
}

func (t *wrappedTxn) Put(ctx context.Context, key ds.Key, value []byte) error {
	return t.txn.Put(ctx, t.t.ConvertKey(key), value)
}

func (t *wrappedTxn) Delete(ctx context.Context, key ds.Key) error {
	return t.txn.Delete(ctx, t.t.ConvertKey(key))
}

func (t *wrappedTxn) Commit(ctx context.Context) error {
	return t.txn.Commit(ctx)
}

func (t *wrappedTxn) Discard(ctx context.Context) {
	t.txn.Discard(ctx)
}
