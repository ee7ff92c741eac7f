// Package store is the transactional KV abstraction the rune indexing core
// is built on: a thin, typed layer over go.etcd.io/bbolt buckets.
package store

import (
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
)

var Err = er.NewErrorType("store.Err")

var ErrBucketMissing = Err.CodeWithDetail("ErrBucketMissing", "required top-level bucket is missing")

// DB wraps a bbolt database and owns creation of the top-level buckets every
// Table/MultimapTable reads and writes through.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if necessary) a bbolt-backed store at path and
// ensures every top-level bucket named by buckets exists.
func Open(path string, buckets [][]byte) (*DB, er.R) {
	bdb, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, er.E(err)
	}
	d := &DB{bolt: bdb}
	if err := d.bolt.Update(func(tx *bbolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, er.E(err)
	}
	return d, nil
}

func (d *DB) Close() er.R {
	return er.E(d.bolt.Close())
}

// Update runs fn within a single read-write transaction, committed when fn
// returns nil and rolled back otherwise.
func (d *DB) Update(fn func(tx *bbolt.Tx) er.R) er.R {
	return er.E(d.bolt.Update(func(tx *bbolt.Tx) error {
		if err := fn(tx); err != nil {
			return er.Native(err)
		}
		return nil
	}))
}

func (d *DB) View(fn func(tx *bbolt.Tx) er.R) er.R {
	return er.E(d.bolt.View(func(tx *bbolt.Tx) error {
		if err := fn(tx); err != nil {
			return er.Native(err)
		}
		return nil
	}))
}
