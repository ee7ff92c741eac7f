// Package runeupdater is the top-level per-transaction orchestrator:
// decipher the runestone artifact, sweep inputs via allocation, resolve any
// open mint and etching, drive Executor, sweep unallocated balances to a
// default output or the burn counter, and write the final per-output
// balance rows. One exported entry point, called once per transaction, in
// block order, by an external sync loop.
package runeupdater

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/allocation"
	"github.com/pktrune/coreindex/authority"
	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/compactscript"
	"github.com/pktrune/coreindex/events"
	"github.com/pktrune/coreindex/executor"
	"github.com/pktrune/coreindex/pktlog/log"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/scriptcache"
	"github.com/pktrune/coreindex/store"
)

// NodeClient is the node capability runeupdater consumes: the same
// prevout-lookup scriptcache fetches through, reused directly so the
// commitment check (which also needs a prevout transaction's confirmation
// count) shares the one cache-filling call instead of a second RPC round
// trip.
type NodeClient = scriptcache.NodeClient

// RunestoneCodec is the external raw-byte runestone decoder/encoder this
// repository consumes but does not implement.
type RunestoneCodec interface {
	Decipher(tx *wire.MsgTx) (*runetypes.Artifact, er.R)
	Encipher(r *runetypes.Runestone) ([]byte, er.R)
}

// Config bundles the collaborators Updater needs: the store, the two
// caches (wrapped into an Authority), the node client, the runestone
// codec, the event sink, and the chain parameters the sync loop supplies
// (the minimum acceptable rune name at the current height and the
// confirmation depth an etching commitment must be buried under).
type Config struct {
	DB                  *store.DB
	Scripts             *scriptcache.Cache
	Contexts            *authority.ContextCache
	Node                NodeClient
	Codec               RunestoneCodec
	Sink                events.Sink
	Minimum             runetypes.RuneName
	CommitConfirmations uint64
}

// Updater is the single exported orchestrator type; not safe for
// concurrent use — ProcessTransaction asserts this with a re-entrancy
// guard rather than documenting it as a mere convention.
type Updater struct {
	db        *store.DB
	scripts   *scriptcache.Cache
	authority *authority.Authority
	executor  *executor.Executor
	node      NodeClient
	codec     RunestoneCodec
	sink      events.Sink

	minimum             runetypes.RuneName
	commitConfirmations uint64

	busy int32

	blockBurned map[runetypes.RuneId]runetypes.Lot
}

var Err = er.NewErrorType("runeupdater.Err")

var errReentrant = Err.CodeWithDetail("errReentrant", "ProcessTransaction called re-entrantly")

func New(cfg Config) *Updater {
	a := authority.New(cfg.Contexts, cfg.Scripts, cfg.Node)
	return &Updater{
		db:                  cfg.DB,
		scripts:             cfg.Scripts,
		authority:           a,
		executor:            executor.New(a),
		node:                cfg.Node,
		codec:               cfg.Codec,
		sink:                cfg.Sink,
		minimum:             cfg.Minimum,
		commitConfirmations: cfg.CommitConfirmations,
		blockBurned:         make(map[runetypes.RuneId]runetypes.Lot),
	}
}

// ProcessTransaction runs the full per-transaction pipeline for one
// confirmed transaction at height/txIndex. Each call runs in, and commits,
// its own read-write transaction; the transactions of one block are not
// grouped into a single atomic scope. Burns are accumulated in memory;
// call FinalizeBlock once the whole block has been processed to persist
// them in a further transaction.
func (u *Updater) ProcessTransaction(goCtx context.Context, height uint64, txIndex uint32, msgTx *wire.MsgTx) er.R {
	if !atomic.CompareAndSwapInt32(&u.busy, 0, 1) {
		panic(errReentrant.New("", nil))
	}
	defer atomic.StoreInt32(&u.busy, 0)

	return u.db.Update(func(tx *bbolt.Tx) er.R {
		return u.processTx(goCtx, tx, height, txIndex, msgTx)
	})
}

// FinalizeBlock applies the block-level burn accumulator to each rune's
// persisted RuneEntry.Burned counter and resets it for the next block.
func (u *Updater) FinalizeBlock() er.R {
	if !atomic.CompareAndSwapInt32(&u.busy, 0, 1) {
		panic(errReentrant.New("", nil))
	}
	defer atomic.StoreInt32(&u.busy, 0)

	burned := u.blockBurned
	u.blockBurned = make(map[runetypes.RuneId]runetypes.Lot)

	return u.db.Update(func(tx *bbolt.Tx) er.R {
		for id, amt := range burned {
			if amt.IsZero() {
				continue
			}
			entry, ok, err := store.Entries.Get(tx, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			entry.Burned = entry.Burned.Add(amt)
			if err := store.Entries.Insert(tx, id, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *Updater) accumulateBurn(id runetypes.RuneId, amt runetypes.Lot) {
	if amt.IsZero() {
		return
	}
	u.blockBurned[id] = u.blockBurned[id].Add(amt)
}

func (u *Updater) processTx(goCtx context.Context, tx *bbolt.Tx, height uint64, txIndex uint32, msgTx *wire.MsgTx) er.R {
	txHash := msgTx.TxHash()

	artifact, err := u.codec.Decipher(msgTx)
	if err != nil {
		return err
	}

	inputs, err := u.buildInputs(goCtx, msgTx)
	if err != nil {
		return err
	}
	isBlacklisted := func(tx *bbolt.Tx, id runetypes.RuneId, script []byte) (bool, er.R) {
		return u.authority.IsBlacklisted(tx, id, script)
	}
	unallocated, err := allocation.CalculateUnallocated(tx, inputs, isBlacklisted)
	if err != nil {
		return err
	}

	var runestone *runetypes.Runestone
	var cenotaph *runetypes.Cenotaph
	var mintId *runetypes.RuneId
	var etchingReq *runetypes.Etching
	if artifact != nil {
		if artifact.Runestone != nil {
			runestone = artifact.Runestone
			mintId = runestone.Mint
			etchingReq = runestone.Etching
		} else if artifact.Cenotaph != nil {
			cenotaph = artifact.Cenotaph
			mintId = cenotaph.Mint
			etchingReq = cenotaph.Etching
		}
	}

	if mintId != nil {
		if err := u.openMint(tx, height, txHash, *mintId, unallocated); err != nil {
			return err
		}
	}

	var etched *runetypes.RuneId
	var etchedName runetypes.RuneName
	if etchingReq != nil {
		candidate := runetypes.RuneId{Block: height, Tx: txIndex}
		switch {
		case runestone != nil:
			etched, etchedName, err = u.resolveEtch(goCtx, tx, msgTx, candidate, etchingReq)
			if err != nil {
				return err
			}
		case cenotaph != nil && etchingReq.Rune != nil:
			ok, err := u.checkCommitment(goCtx, *etchingReq.Rune, msgTx)
			if err != nil {
				return err
			}
			if ok {
				etched = &candidate
				etchedName = *etchingReq.Rune
			}
		}
	}

	if runestone != nil && etched != nil {
		unallocated.Add(*etched, etchingReq.Premine)
	}

	allocated := make(executor.Allocated)
	if runestone != nil {
		if err := u.executor.Run(goCtx, tx, msgTx, runestone, etched, unallocated, allocated); err != nil {
			return err
		}
	}

	if etched != nil {
		if err := u.createRuneEntry(goCtx, tx, *etched, etchedName, etchingReq, msgTx); err != nil {
			return err
		}
		u.sink.RuneEtched(events.RuneEtched{BlockHeight: height, Txid: txHash, RuneId: *etched})
	}

	if cenotaph != nil {
		for id, amt := range unallocated {
			if amt.IsZero() {
				continue
			}
			u.accumulateBurn(id, amt)
			u.sink.RuneBurned(events.RuneBurned{BlockHeight: height, Txid: txHash, RuneId: id, Amount: amt})
		}
	} else if err := u.sweepDefault(tx, height, txHash, runestone, msgTx, unallocated, allocated); err != nil {
		return err
	}

	return u.writeAllocations(tx, height, txHash, msgTx, allocated)
}

func (u *Updater) buildInputs(goCtx context.Context, msgTx *wire.MsgTx) ([]allocation.Input, er.R) {
	inputs := make([]allocation.Input, 0, len(msgTx.TxIn))
	for _, txIn := range msgTx.TxIn {
		op := txIn.PreviousOutPoint
		script, err := u.scripts.GetScriptPubKey(goCtx, u.node, op.Hash, op.Index)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, allocation.Input{OutPoint: op, PrevoutScript: script})
	}
	return inputs, nil
}

func (u *Updater) openMint(tx *bbolt.Tx, height uint64, txHash chainhash.Hash, id runetypes.RuneId, unallocated allocation.Unallocated) er.R {
	entry, ok, err := store.Entries.Get(tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	amt, mintable := entry.Mintable(height)
	if !mintable {
		return nil
	}
	unallocated.Add(id, amt)
	entry.Mints++
	if err := store.Entries.Insert(tx, id, entry); err != nil {
		return err
	}
	u.sink.RuneMinted(events.RuneMinted{BlockHeight: height, Txid: txHash, RuneId: id, Amount: amt})
	return nil
}

// resolveEtch decides whether a well-formed Runestone etching takes effect:
// a named rune is accepted iff it is at least Minimum, not reserved, and
// not already assigned, and the transaction commits to it; an unnamed
// etching is assigned the next reserved name unconditionally.
func (u *Updater) resolveEtch(goCtx context.Context, tx *bbolt.Tx, msgTx *wire.MsgTx, candidate runetypes.RuneId, etchingReq *runetypes.Etching) (*runetypes.RuneId, runetypes.RuneName, er.R) {
	if etchingReq.Rune == nil {
		counter, err := store.NextReservedCounter(tx)
		if err != nil {
			return nil, runetypes.RuneName{}, err
		}
		return &candidate, runetypes.ReservedName(counter), nil
	}

	name := *etchingReq.Rune
	if name.Less(u.minimum) || name.IsReserved() {
		return nil, runetypes.RuneName{}, nil
	}
	_, taken, err := store.RuneNameToId.Get(tx, name.Value)
	if err != nil {
		return nil, runetypes.RuneName{}, err
	}
	if taken {
		return nil, runetypes.RuneName{}, nil
	}
	ok, err := u.checkCommitment(goCtx, name, msgTx)
	if err != nil {
		return nil, runetypes.RuneName{}, err
	}
	if !ok {
		return nil, runetypes.RuneName{}, nil
	}
	return &candidate, name, nil
}

// checkCommitment enforces the etching commitment rule: some input's
// witness must carry a tapscript leaf pushing name.Commitment(), the
// corresponding prevout must be a taproot output, and that prevout's
// containing transaction must be buried by at least CommitConfirmations
// confirmations.
func (u *Updater) checkCommitment(goCtx context.Context, name runetypes.RuneName, msgTx *wire.MsgTx) (bool, er.R) {
	commitment := name.Commitment()
	for _, txIn := range msgTx.TxIn {
		if len(txIn.Witness) < 2 {
			continue
		}
		leafScript := txIn.Witness[len(txIn.Witness)-2]
		controlBlock := txIn.Witness[len(txIn.Witness)-1]
		if _, err := txscript.ParseControlBlock(controlBlock); err != nil {
			continue
		}

		op := txIn.PreviousOutPoint
		prevoutScript, err := u.scripts.GetScriptPubKey(goCtx, u.node, op.Hash, op.Index)
		if err != nil {
			return false, err
		}
		if !txscript.IsPayToTaproot(prevoutScript) {
			continue
		}

		pushes, perr := txscript.PushedData(leafScript)
		if perr != nil {
			continue
		}
		committed := false
		for _, p := range pushes {
			if bytes.Equal(p, commitment) {
				committed = true
				break
			}
		}
		if !committed {
			continue
		}

		info, err := u.node.GetRawTransactionInfo(goCtx, &op.Hash)
		if err != nil {
			return false, err
		}
		if info == nil {
			continue
		}
		if uint64(info.Confirmations) >= u.commitConfirmations {
			return true, nil
		}
	}
	return false, nil
}

func (u *Updater) createRuneEntry(goCtx context.Context, tx *bbolt.Tx, id runetypes.RuneId, name runetypes.RuneName, etchingReq *runetypes.Etching, msgTx *wire.MsgTx) er.R {
	flags := runetypes.BitMaster
	if etchingReq.Terms != nil {
		if etchingReq.Terms.AllowMinting {
			flags = flags.Union(runetypes.BitMint)
		}
		if etchingReq.Terms.AllowBlacklisting {
			flags = flags.Union(runetypes.BitBlacklist)
		}
	}
	if err := store.AuthorityFlags.Insert(tx, id, flags); err != nil {
		return err
	}
	// The executor may already have cached an empty context for this id
	// while running this same transaction's operations.
	u.authority.Contexts.Invalidate(id)

	if len(msgTx.TxIn) > 0 {
		op := msgTx.TxIn[0].PreviousOutPoint
		firstScript, err := u.scripts.GetScriptPubKey(goCtx, u.node, op.Hash, op.Index)
		if err != nil {
			return err
		}
		if cs, ok := compactscript.TryFromScript(firstScript); ok {
			if err := u.authority.SeedAllSlots(tx, id, cs); err != nil {
				return err
			}
		} else {
			log.Warnf("etch %s: first input prevout script not convertible, skipping authority seeding", id.String())
		}
	}

	var divisibility uint8
	if etchingReq.Divisibility != nil {
		divisibility = *etchingReq.Divisibility
	}
	var symbol rune
	if etchingReq.Symbol != nil {
		symbol = *etchingReq.Symbol
	}
	var spacers uint32
	if etchingReq.Spacers != nil {
		spacers = *etchingReq.Spacers
	}

	entry := runetypes.RuneEntry{
		RuneId:       id,
		Name:         name.Text,
		Divisibility: divisibility,
		Symbol:       symbol,
		Spacers:      spacers,
		Turbo:        etchingReq.Turbo,
		Premine:      etchingReq.Premine,
		Terms:        etchingReq.Terms,
		Reserved:     name.IsReserved(),
	}
	if err := store.Entries.Insert(tx, id, entry); err != nil {
		return err
	}
	return store.RuneNameToId.Insert(tx, name.Value, id)
}

// defaultOutput resolves the default vout: the runestone's pointer field
// if present and in range, else the first non-OP_RETURN output.
func defaultOutput(r *runetypes.Runestone, msgTx *wire.MsgTx) (uint32, bool) {
	if r != nil && r.Pointer != nil && *r.Pointer < uint32(len(msgTx.TxOut)) {
		return *r.Pointer, true
	}
	for i, txOut := range msgTx.TxOut {
		if isOpReturn(txOut.PkScript) {
			continue
		}
		return uint32(i), true
	}
	return 0, false
}

func isOpReturn(script []byte) bool {
	return len(script) > 0 && script[0] == txscript.OP_RETURN
}

// sweepDefault handles leftover balances for a non-cenotaph artifact (or no
// artifact at all): remaining unallocated balances go to the default vout,
// except amounts whose destination is blacklisted for that rune, which
// stay with the sender; with no default vout, everything is burned.
func (u *Updater) sweepDefault(tx *bbolt.Tx, height uint64, txHash chainhash.Hash, r *runetypes.Runestone, msgTx *wire.MsgTx, unallocated allocation.Unallocated, allocated executor.Allocated) er.R {
	vout, ok := defaultOutput(r, msgTx)
	if !ok {
		for id, amt := range unallocated {
			if amt.IsZero() {
				continue
			}
			u.accumulateBurn(id, amt)
			u.sink.RuneBurned(events.RuneBurned{BlockHeight: height, Txid: txHash, RuneId: id, Amount: amt})
		}
		return nil
	}

	script := msgTx.TxOut[vout].PkScript
	for id, amt := range unallocated {
		if amt.IsZero() {
			continue
		}
		blacklisted, err := u.authority.IsBlacklisted(tx, id, script)
		if err != nil {
			return err
		}
		if blacklisted {
			continue
		}
		allocated.Add(vout, id, amt)
	}
	return nil
}

// writeAllocations persists the final per-output balances: OP_RETURN
// destinations burn, everything else is written sorted by RuneId into
// outpoint_to_balances.
func (u *Updater) writeAllocations(tx *bbolt.Tx, height uint64, txHash chainhash.Hash, msgTx *wire.MsgTx, allocated executor.Allocated) er.R {
	for vout, perRune := range allocated {
		if isOpReturn(msgTx.TxOut[vout].PkScript) {
			for id, amt := range perRune {
				if amt.IsZero() {
					continue
				}
				u.accumulateBurn(id, amt)
				u.sink.RuneBurned(events.RuneBurned{BlockHeight: height, Txid: txHash, RuneId: id, Amount: amt})
			}
			continue
		}

		var balances []store.Balance
		for id, amt := range perRune {
			if amt.IsZero() {
				continue
			}
			balances = append(balances, store.Balance{Id: id, Amount: amt})
			u.sink.RuneTransferred(events.RuneTransferred{
				BlockHeight: height,
				Txid:        txHash,
				RuneId:      id,
				Amount:      amt,
				Outpoint:    wire.OutPoint{Hash: txHash, Index: vout},
			})
		}
		if len(balances) == 0 {
			continue
		}
		op := wire.OutPoint{Hash: txHash, Index: vout}
		if err := store.OutpointBalances.Insert(tx, op, balances); err != nil {
			return err
		}
	}
	return nil
}
