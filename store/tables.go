package store

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
)

var (
	bucketOutpointBalances = []byte("outpoint_to_balances")
	bucketAuthorityFlags   = []byte("rune_id_to_authority_flags")
	bucketAuthorityScripts = []byte("rune_id_to_authority_scripts")
	bucketMinters          = []byte("rune_id_to_minters")
	bucketBlacklist        = []byte("rune_id_to_blacklist")
	bucketSupplyExtra      = []byte("rune_id_to_supply_extra")
	bucketEntries          = []byte("id_to_entry")
	bucketRuneNameToId     = []byte("rune_name_to_id")
	bucketMeta             = []byte("meta")
)

// AllBuckets lists every top-level bucket the core's tables need; pass to
// Open so a fresh store has all of them from the start.
var AllBuckets = [][]byte{
	bucketOutpointBalances,
	bucketAuthorityFlags,
	bucketAuthorityScripts,
	bucketMinters,
	bucketBlacklist,
	bucketSupplyExtra,
	bucketEntries,
	bucketRuneNameToId,
	bucketMeta,
}

var OutpointBalances = Table[wire.OutPoint, []Balance]{
	Bucket: bucketOutpointBalances,
	EncKey: EncodeOutPoint,
	EncVal: EncodeBalances,
	DecVal: DecodeBalances,
}

var AuthorityFlags = Table[runetypes.RuneId, runetypes.AuthorityBits]{
	Bucket: bucketAuthorityFlags,
	EncKey: EncodeRuneId,
	EncVal: EncodeAuthorityBits,
	DecVal: DecodeAuthorityBits,
}

// AuthorityScripts stores the raw presence-prefixed scripts blob;
// the authority package owns decoding/merging its contents.
var AuthorityScripts = Table[runetypes.RuneId, []byte]{
	Bucket: bucketAuthorityScripts,
	EncKey: EncodeRuneId,
	EncVal: func(b []byte) []byte { return b },
	DecVal: func(b []byte) ([]byte, er.R) { return b, nil },
}

var Minters = MultimapTable[runetypes.RuneId]{
	Bucket: bucketMinters,
	EncKey: EncodeRuneId,
}

var Blacklist = MultimapTable[runetypes.RuneId]{
	Bucket: bucketBlacklist,
	EncKey: EncodeRuneId,
}

var SupplyExtra = Table[runetypes.RuneId, runetypes.Lot]{
	Bucket: bucketSupplyExtra,
	EncKey: EncodeRuneId,
	EncVal: EncodeLot,
	DecVal: DecodeLot,
}

var Entries = Table[runetypes.RuneId, runetypes.RuneEntry]{
	Bucket: bucketEntries,
	EncKey: EncodeRuneId,
	EncVal: EncodeRuneEntry,
	DecVal: DecodeRuneEntry,
}

// RuneNameToId resolves an etched rune's numeric name to its assigned
// RuneId, used by RuneUpdater to reject an etching that names an
// already-taken rune.
var RuneNameToId = Table[uint64, runetypes.RuneId]{
	Bucket: bucketRuneNameToId,
	EncKey: EncodeUint64,
	EncVal: EncodeRuneId,
	DecVal: DecodeRuneId,
}

// EncodeUint64 big-endian-encodes a rune's numeric name for use as a
// rune_name_to_id key, preserving numeric order under bbolt's byte-order
// key iteration.
func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Meta keys, stored as plain values in bucketMeta.
var (
	MetaKeyReservedCounter = []byte("reserved_counter")
)

// NextReservedCounter returns the current reserved-name counter value and
// persists its increment, backing the monotonically increasing reserved
// name assignment for etchings that name no rune of their own.
func NextReservedCounter(tx *bbolt.Tx) (uint64, er.R) {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return 0, ErrBucketMissing.New(string(bucketMeta), nil)
	}
	var cur uint64
	if raw := b.Get(MetaKeyReservedCounter); raw != nil {
		cur = binary.BigEndian.Uint64(raw)
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, cur+1)
	if err := b.Put(MetaKeyReservedCounter, next); err != nil {
		return 0, er.E(err)
	}
	return cur, nil
}
