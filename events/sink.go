// Package events defines the four per-transaction domain events RuneUpdater
// emits and the Sink interface a caller implements to receive them.
package events

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/pktrune/coreindex/runetypes"
)

// RuneEtched fires when a transaction's runestone creates a new rune.
type RuneEtched struct {
	BlockHeight uint64
	Txid        chainhash.Hash
	RuneId      runetypes.RuneId
}

// RuneMinted fires for an open mint. Authority and delegated-minter mints
// beyond balance emit no event; they are recorded only in supply_extra.
type RuneMinted struct {
	BlockHeight uint64
	Txid        chainhash.Hash
	RuneId      runetypes.RuneId
	Amount      runetypes.Lot
}

// RuneTransferred fires once per (rune, destination output) credited by a
// transaction.
type RuneTransferred struct {
	BlockHeight uint64
	Txid        chainhash.Hash
	RuneId      runetypes.RuneId
	Amount      runetypes.Lot
	Outpoint    wire.OutPoint
}

// RuneBurned fires when a balance is permanently removed from supply,
// whether by a cenotaph, an OP_RETURN destination, or no default output
// existing to sweep to.
type RuneBurned struct {
	BlockHeight uint64
	Txid        chainhash.Hash
	RuneId      runetypes.RuneId
	Amount      runetypes.Lot
}

// Sink receives RuneUpdater's domain events in the order they occur within
// a block.
type Sink interface {
	RuneEtched(RuneEtched)
	RuneMinted(RuneMinted)
	RuneTransferred(RuneTransferred)
	RuneBurned(RuneBurned)
}
