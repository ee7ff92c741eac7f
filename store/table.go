package store

import (
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
)

// Table is a typed Get/Insert/Remove surface over a single bbolt bucket.
type Table[K any, V any] struct {
	Bucket []byte
	EncKey func(K) []byte
	EncVal func(V) []byte
	DecVal func([]byte) (V, er.R)
}

func (t Table[K, V]) bucket(tx *bbolt.Tx) (*bbolt.Bucket, er.R) {
	b := tx.Bucket(t.Bucket)
	if b == nil {
		return nil, ErrBucketMissing.New(string(t.Bucket), nil)
	}
	return b, nil
}

// Get returns the row at k, or ok=false if no row is stored there.
func (t Table[K, V]) Get(tx *bbolt.Tx, k K) (V, bool, er.R) {
	var zero V
	b, err := t.bucket(tx)
	if err != nil {
		return zero, false, err
	}
	raw := b.Get(t.EncKey(k))
	if raw == nil {
		return zero, false, nil
	}
	v, err := t.DecVal(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Insert writes (k, v), overwriting any existing row.
func (t Table[K, V]) Insert(tx *bbolt.Tx, k K, v V) er.R {
	b, err := t.bucket(tx)
	if err != nil {
		return err
	}
	return er.E(b.Put(t.EncKey(k), t.EncVal(v)))
}

// ForEach walks every row in key order, decoding each value and passing it
// to fn along with its raw key bytes. Stops and returns fn's error, if any.
func (t Table[K, V]) ForEach(tx *bbolt.Tx, fn func(rawKey []byte, v V) er.R) er.R {
	b, err := t.bucket(tx)
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, raw := c.First(); k != nil; k, raw = c.Next() {
		v, err := t.DecVal(raw)
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the row at k and returns the value that was there, if any.
func (t Table[K, V]) Remove(tx *bbolt.Tx, k K) (V, bool, er.R) {
	v, ok, err := t.Get(tx, k)
	if err != nil || !ok {
		return v, ok, err
	}
	b, err := t.bucket(tx)
	if err != nil {
		return v, false, err
	}
	if err := b.Delete(t.EncKey(k)); err != nil {
		return v, false, er.E(err)
	}
	return v, true, nil
}
