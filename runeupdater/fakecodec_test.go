package runeupdater

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
)

// tagCodec is the in-repo stand-in for the external runestone byte codec.
// It encodes the published tag scheme literally (Flags=2, Rune=4,
// SetAuthority=101, Blacklist=103, Unblacklist=105, AddMinter=107,
// RemoveMinter=109, AllowMinting=111, AllowBlacklisting=113) as LEB128
// (tag, value) varint pairs behind an OP_RETURN OP_13 output, which is
// faithful enough to drive every updater and executor path from a real
// wire.MsgTx. Amounts are capped to u64 here; the tests never need more.
type tagCodec struct{}

const (
	tagBody              = 0
	tagFlags             = 2
	tagRune              = 4
	tagPremine           = 6
	tagCap               = 8
	tagAmount            = 10
	tagMint              = 20
	tagPointer           = 22
	tagSetAuthority      = 101
	tagBlacklist         = 103
	tagUnblacklist       = 105
	tagAddMinter         = 107
	tagRemoveMinter      = 109
	tagAllowMinting      = 111
	tagAllowBlacklisting = 113
)

const (
	flagEtching = 1 << 0
	flagTerms   = 1 << 1
)

func putVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readVarint(b []byte, off int) (uint64, int, bool) {
	var v uint64
	var shift uint
	for i := off; i < len(b); i++ {
		v |= uint64(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return v, i + 1, true
		}
		shift += 7
		if shift > 63 {
			return 0, off, false
		}
	}
	return 0, off, false
}

func putPair(buf []byte, tag, value uint64) []byte {
	buf = putVarint(buf, tag)
	return putVarint(buf, value)
}

func putEntries(buf []byte, tag uint64, entries []runetypes.AuthorityEntry) []byte {
	for _, e := range entries {
		buf = putPair(buf, tag, uint64(e.Kind))
		buf = putPair(buf, tag, uint64(len(e.Body)))
		for _, b := range e.Body {
			buf = putPair(buf, tag, uint64(b))
		}
	}
	return buf
}

func (tagCodec) Encipher(r *runetypes.Runestone) ([]byte, er.R) {
	var payload []byte

	if e := r.Etching; e != nil {
		flags := uint64(flagEtching)
		if e.Terms != nil {
			flags |= flagTerms
		}
		payload = putPair(payload, tagFlags, flags)
		if e.Rune != nil {
			payload = putPair(payload, tagRune, e.Rune.Value)
		}
		if !e.Premine.IsZero() {
			v, _ := e.Premine.Uint64()
			payload = putPair(payload, tagPremine, v)
		}
		if t := e.Terms; t != nil {
			if t.Amount != nil {
				v, _ := t.Amount.Uint64()
				payload = putPair(payload, tagAmount, v)
			}
			if t.Cap != nil {
				v, _ := t.Cap.Uint64()
				payload = putPair(payload, tagCap, v)
			}
			if t.AllowMinting {
				payload = putPair(payload, tagAllowMinting, 1)
			}
			if t.AllowBlacklisting {
				payload = putPair(payload, tagAllowBlacklisting, 1)
			}
		}
	}
	if r.Mint != nil {
		payload = putPair(payload, tagMint, r.Mint.Block)
		payload = putPair(payload, tagMint, uint64(r.Mint.Tx))
	}
	if r.Pointer != nil {
		payload = putPair(payload, tagPointer, uint64(*r.Pointer))
	}
	if sa := r.SetAuthority; sa != nil {
		payload = putPair(payload, tagSetAuthority, uint64(sa.Authorities))
		payload = putPair(payload, tagSetAuthority, uint64(len(sa.ScriptPubKeyCompact)))
		for _, b := range sa.ScriptPubKeyCompact {
			payload = putPair(payload, tagSetAuthority, uint64(b))
		}
	}
	if au := r.Authority; au != nil {
		payload = putEntries(payload, tagAddMinter, au.AddMinter)
		payload = putEntries(payload, tagRemoveMinter, au.RemoveMinter)
		payload = putEntries(payload, tagBlacklist, au.Blacklist)
		payload = putEntries(payload, tagUnblacklist, au.Unblacklist)
	}
	if len(r.Edicts) > 0 {
		payload = putVarint(payload, tagBody)
		for _, e := range r.Edicts {
			payload = putVarint(payload, e.Id.Block)
			payload = putVarint(payload, uint64(e.Id.Tx))
			amt, _ := e.Amount.Uint64()
			payload = putVarint(payload, amt)
			payload = putVarint(payload, uint64(e.Output))
		}
	}

	return payloadToScript(payload), nil
}

func payloadToScript(payload []byte) []byte {
	script := []byte{txscript.OP_RETURN, txscript.OP_13}
	for len(payload) > 0 {
		n := len(payload)
		if n > 75 {
			n = 75
		}
		script = append(script, byte(n))
		script = append(script, payload[:n]...)
		payload = payload[n:]
	}
	return script
}

func scriptToPayload(script []byte) ([]byte, bool) {
	if len(script) < 2 || script[0] != txscript.OP_RETURN || script[1] != txscript.OP_13 {
		return nil, false
	}
	var payload []byte
	off := 2
	for off < len(script) {
		n := int(script[off])
		if n == 0 || n > 75 || off+1+n > len(script) {
			return nil, false
		}
		payload = append(payload, script[off+1:off+1+n]...)
		off += 1 + n
	}
	return payload, true
}

// decodeValues drains a tag-value varint stream into per-tag value lists,
// reporting whether an unrecognized even tag (the cenotaph trigger) or a
// truncated varint was seen.
func decodeValues(payload []byte) (map[uint64][]uint64, []uint64, bool) {
	values := make(map[uint64][]uint64)
	var edictVals []uint64
	malformed := false
	off := 0
	for off < len(payload) {
		tag, next, ok := readVarint(payload, off)
		if !ok {
			malformed = true
			break
		}
		off = next
		if tag == tagBody {
			for off < len(payload) {
				v, next, ok := readVarint(payload, off)
				if !ok {
					malformed = true
					break
				}
				edictVals = append(edictVals, v)
				off = next
			}
			break
		}
		v, next, ok := readVarint(payload, off)
		if !ok {
			malformed = true
			break
		}
		off = next
		switch tag {
		case tagFlags, tagRune, tagPremine, tagCap, tagAmount, tagMint, tagPointer,
			tagSetAuthority, tagBlacklist, tagUnblacklist, tagAddMinter,
			tagRemoveMinter, tagAllowMinting, tagAllowBlacklisting:
			values[tag] = append(values[tag], v)
		default:
			if tag%2 == 0 {
				malformed = true
			}
		}
	}
	return values, edictVals, malformed
}

// decodeEntries parses (kind, length, body...) triples emitted under one
// list tag. A length over 33 aborts that element and everything after it.
func decodeEntries(vals []uint64) []runetypes.AuthorityEntry {
	var out []runetypes.AuthorityEntry
	off := 0
	for off+2 <= len(vals) {
		kind := vals[off]
		n := vals[off+1]
		if n > 33 || off+2+int(n) > len(vals) {
			break
		}
		body := make([]byte, n)
		for i := 0; i < int(n); i++ {
			body[i] = byte(vals[off+2+i])
		}
		out = append(out, runetypes.AuthorityEntry{Kind: runetypes.ScriptKind(kind), Body: body})
		off += 2 + int(n)
	}
	return out
}

func (tagCodec) Decipher(tx *wire.MsgTx) (*runetypes.Artifact, er.R) {
	var payload []byte
	found := false
	for _, out := range tx.TxOut {
		if p, ok := scriptToPayload(out.PkScript); ok {
			payload = p
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}

	values, edictVals, malformed := decodeValues(payload)

	var etching *runetypes.Etching
	if flags, ok := values[tagFlags]; ok && len(flags) > 0 && flags[0]&flagEtching != 0 {
		etching = &runetypes.Etching{}
		if rv, ok := values[tagRune]; ok && len(rv) > 0 {
			name := runetypes.RuneName{Value: rv[0]}
			etching.Rune = &name
		}
		if pv, ok := values[tagPremine]; ok && len(pv) > 0 {
			etching.Premine = runetypes.NewLot(pv[0])
		}
		if flags[0]&flagTerms != 0 {
			terms := &runetypes.Terms{}
			if av, ok := values[tagAmount]; ok && len(av) > 0 {
				amt := runetypes.NewLot(av[0])
				terms.Amount = &amt
			}
			if cv, ok := values[tagCap]; ok && len(cv) > 0 {
				capLot := runetypes.NewLot(cv[0])
				terms.Cap = &capLot
			}
			terms.AllowMinting = len(values[tagAllowMinting]) > 0
			terms.AllowBlacklisting = len(values[tagAllowBlacklisting]) > 0
			etching.Terms = terms
		}
	}

	var mint *runetypes.RuneId
	if mv := values[tagMint]; len(mv) >= 2 {
		mint = &runetypes.RuneId{Block: mv[0], Tx: uint32(mv[1])}
	}

	if malformed {
		return &runetypes.Artifact{Cenotaph: &runetypes.Cenotaph{Etching: etching, Mint: mint}}, nil
	}

	r := &runetypes.Runestone{Etching: etching, Mint: mint}
	if pv := values[tagPointer]; len(pv) > 0 {
		p := uint32(pv[0])
		r.Pointer = &p
	}
	if sv := values[tagSetAuthority]; len(sv) >= 2 {
		n := sv[1]
		if n <= 33 && 2+int(n) <= len(sv) {
			body := make([]byte, n)
			for i := 0; i < int(n); i++ {
				body[i] = byte(sv[2+i])
			}
			r.SetAuthority = &runetypes.SetAuthority{
				Authorities:         runetypes.AuthorityBits(sv[0]),
				ScriptPubKeyCompact: body,
			}
		}
	}
	addMinter := decodeEntries(values[tagAddMinter])
	removeMinter := decodeEntries(values[tagRemoveMinter])
	blacklist := decodeEntries(values[tagBlacklist])
	unblacklist := decodeEntries(values[tagUnblacklist])
	if len(addMinter)+len(removeMinter)+len(blacklist)+len(unblacklist) > 0 {
		r.Authority = &runetypes.AuthorityUpdates{
			AddMinter:    addMinter,
			RemoveMinter: removeMinter,
			Blacklist:    blacklist,
			Unblacklist:  unblacklist,
		}
	}
	for i := 0; i+4 <= len(edictVals); i += 4 {
		r.Edicts = append(r.Edicts, runetypes.Edict{
			Id:     runetypes.RuneId{Block: edictVals[i], Tx: uint32(edictVals[i+1])},
			Amount: runetypes.NewLot(edictVals[i+2]),
			Output: uint32(edictVals[i+3]),
		})
	}

	return &runetypes.Artifact{Runestone: r}, nil
}

// cenotaphScript builds an OP_RETURN payload carrying an unrecognized even
// tag, which Decipher reports as a Cenotaph.
func cenotaphScript() []byte {
	payload := putPair(nil, 126, 1)
	return payloadToScript(payload)
}
