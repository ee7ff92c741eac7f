package store

import (
	"encoding/binary"

	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
)

// MultimapTable stores an ordered list of raw byte values under each outer
// key; duplicate values are kept (minter and blacklist entries are always `[kind][body]`). It is
// built as a bucket of sub-buckets, the sub-bucket keyed by an
// ever-increasing per-outer-key sequence number so that a Cursor walk
// yields insertion order. Readers only rely on set membership; the stable
// order keeps tests reproducible across runs.
type MultimapTable[K any] struct {
	Bucket []byte
	EncKey func(K) []byte
}

func (t MultimapTable[K]) outer(tx *bbolt.Tx) (*bbolt.Bucket, er.R) {
	b := tx.Bucket(t.Bucket)
	if b == nil {
		return nil, ErrBucketMissing.New(string(t.Bucket), nil)
	}
	return b, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Insert appends v to the ordered list stored under k, even if an equal
// value is already there.
func (t MultimapTable[K]) Insert(tx *bbolt.Tx, k K, v []byte) er.R {
	outer, err := t.outer(tx)
	if err != nil {
		return err
	}
	sub, errr := outer.CreateBucketIfNotExists(t.EncKey(k))
	if errr != nil {
		return er.E(errr)
	}
	seq, errr := sub.NextSequence()
	if errr != nil {
		return er.E(errr)
	}
	return er.E(sub.Put(seqKey(seq), v))
}

// GetAll returns every value stored under k, in insertion order.
func (t MultimapTable[K]) GetAll(tx *bbolt.Tx, k K) ([][]byte, er.R) {
	outer, err := t.outer(tx)
	if err != nil {
		return nil, err
	}
	sub := outer.Bucket(t.EncKey(k))
	if sub == nil {
		return nil, nil
	}
	var out [][]byte
	c := sub.Cursor()
	for bk, bv := c.First(); bk != nil; bk, bv = c.Next() {
		cp := make([]byte, len(bv))
		copy(cp, bv)
		out = append(out, cp)
	}
	return out, nil
}

// Remove deletes every value under k for which match returns true, and
// reports how many were removed. If the set under k becomes empty, the
// sub-bucket itself is dropped.
func (t MultimapTable[K]) Remove(tx *bbolt.Tx, k K, match func([]byte) bool) (int, er.R) {
	outer, err := t.outer(tx)
	if err != nil {
		return 0, err
	}
	sub := outer.Bucket(t.EncKey(k))
	if sub == nil {
		return 0, nil
	}
	var toDelete [][]byte
	c := sub.Cursor()
	for bk, bv := c.First(); bk != nil; bk, bv = c.Next() {
		if match(bv) {
			kk := make([]byte, len(bk))
			copy(kk, bk)
			toDelete = append(toDelete, kk)
		}
	}
	for _, kk := range toDelete {
		if errr := sub.Delete(kk); errr != nil {
			return 0, er.E(errr)
		}
	}
	if len(toDelete) > 0 {
		if first, _ := sub.Cursor().First(); first == nil {
			if errr := outer.DeleteBucket(t.EncKey(k)); errr != nil {
				return 0, er.E(errr)
			}
		}
	}
	return len(toDelete), nil
}
