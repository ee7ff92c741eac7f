package store

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
)

var errShortBuffer = Err.Code("errShortBuffer")

// EncodeOutPoint / DecodeOutPoint key the outpoint_to_balances table.
func EncodeOutPoint(op wire.OutPoint) []byte {
	b := make([]byte, chainhash.HashSize+4)
	copy(b, op.Hash[:])
	binary.BigEndian.PutUint32(b[chainhash.HashSize:], op.Index)
	return b
}

func DecodeOutPoint(b []byte) (wire.OutPoint, er.R) {
	if len(b) != chainhash.HashSize+4 {
		return wire.OutPoint{}, errShortBuffer.New("outpoint key", nil)
	}
	var h chainhash.Hash
	copy(h[:], b[:chainhash.HashSize])
	return wire.OutPoint{Hash: h, Index: binary.BigEndian.Uint32(b[chainhash.HashSize:])}, nil
}

// EncodeRuneId / DecodeRuneId key every RuneId-indexed table. Big-endian so
// that bbolt's byte-order key iteration also sorts by (block, tx).
func EncodeRuneId(id runetypes.RuneId) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[0:8], id.Block)
	binary.BigEndian.PutUint32(b[8:12], id.Tx)
	return b
}

func DecodeRuneId(b []byte) (runetypes.RuneId, er.R) {
	if len(b) != 12 {
		return runetypes.RuneId{}, errShortBuffer.New("rune id key", nil)
	}
	return runetypes.RuneId{
		Block: binary.BigEndian.Uint64(b[0:8]),
		Tx:    binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// Balance is one (RuneId, Lot) row of an outpoint_to_balances value.
type Balance struct {
	Id     runetypes.RuneId
	Amount runetypes.Lot
}

const balanceRowSize = 12 + 16

// EncodeBalances serializes balances sorted by RuneId; rows are always
// written in that order.
func EncodeBalances(balances []Balance) []byte {
	sorted := make([]Balance, len(balances))
	copy(sorted, balances)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Id.Less(sorted[j-1].Id); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := make([]byte, 0, len(sorted)*balanceRowSize)
	for _, b := range sorted {
		out = append(out, EncodeRuneId(b.Id)...)
		out = append(out, b.Amount.Bytes()...)
	}
	return out
}

func DecodeBalances(b []byte) ([]Balance, er.R) {
	if len(b)%balanceRowSize != 0 {
		return nil, errShortBuffer.New("balances row", nil)
	}
	n := len(b) / balanceRowSize
	out := make([]Balance, 0, n)
	for i := 0; i < n; i++ {
		row := b[i*balanceRowSize : (i+1)*balanceRowSize]
		id, err := DecodeRuneId(row[:12])
		if err != nil {
			return nil, err
		}
		out = append(out, Balance{Id: id, Amount: runetypes.LotFromBytes(row[12:])})
	}
	return out, nil
}

func EncodeLot(l runetypes.Lot) []byte { return l.Bytes() }

func DecodeLot(b []byte) (runetypes.Lot, er.R) {
	if len(b) != 16 {
		return runetypes.Lot{}, errShortBuffer.New("lot", nil)
	}
	return runetypes.LotFromBytes(b), nil
}

func EncodeAuthorityBits(b runetypes.AuthorityBits) []byte {
	return []byte{byte(b)}
}

func DecodeAuthorityBits(b []byte) (runetypes.AuthorityBits, er.R) {
	if len(b) != 1 {
		return 0, errShortBuffer.New("authority bits", nil)
	}
	return runetypes.AuthorityBits(b[0]), nil
}

// RuneEntry encoding: a small hand-rolled binary layout.

func putUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func putUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func putString(w *bytes.Buffer, s string) {
	putUint32(w, uint32(len(s)))
	w.WriteString(s)
}

func EncodeTerms(t *runetypes.Terms) []byte {
	var w bytes.Buffer
	if t == nil {
		w.WriteByte(0)
		return w.Bytes()
	}
	w.WriteByte(1)
	var flags byte
	if t.AllowMinting {
		flags |= 1 << 0
	}
	if t.AllowBlacklisting {
		flags |= 1 << 1
	}
	if t.Amount != nil {
		flags |= 1 << 2
	}
	if t.Cap != nil {
		flags |= 1 << 3
	}
	if t.HeightStart != nil {
		flags |= 1 << 4
	}
	if t.HeightEnd != nil {
		flags |= 1 << 5
	}
	if t.OffsetStart != nil {
		flags |= 1 << 6
	}
	if t.OffsetEnd != nil {
		flags |= 1 << 7
	}
	w.WriteByte(flags)
	if t.Amount != nil {
		w.Write(t.Amount.Bytes())
	}
	if t.Cap != nil {
		w.Write(t.Cap.Bytes())
	}
	if t.HeightStart != nil {
		putUint64(&w, *t.HeightStart)
	}
	if t.HeightEnd != nil {
		putUint64(&w, *t.HeightEnd)
	}
	if t.OffsetStart != nil {
		putUint64(&w, *t.OffsetStart)
	}
	if t.OffsetEnd != nil {
		putUint64(&w, *t.OffsetEnd)
	}
	return w.Bytes()
}

func readUint64(r *bytes.Reader) (uint64, er.R) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errShortBuffer.New("uint64", nil)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readLot(r *bytes.Reader) (runetypes.Lot, er.R) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return runetypes.Lot{}, errShortBuffer.New("lot", nil)
	}
	return runetypes.LotFromBytes(b), nil
}

func DecodeTerms(r *bytes.Reader) (*runetypes.Terms, er.R) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, errShortBuffer.New("terms presence", nil)
	}
	if present == 0 {
		return nil, nil
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, errShortBuffer.New("terms flags", nil)
	}
	t := &runetypes.Terms{
		AllowMinting:      flags&(1<<0) != 0,
		AllowBlacklisting: flags&(1<<1) != 0,
	}
	if flags&(1<<2) != 0 {
		l, errr := readLot(r)
		if errr != nil {
			return nil, errr
		}
		t.Amount = &l
	}
	if flags&(1<<3) != 0 {
		l, errr := readLot(r)
		if errr != nil {
			return nil, errr
		}
		t.Cap = &l
	}
	if flags&(1<<4) != 0 {
		v, errr := readUint64(r)
		if errr != nil {
			return nil, errr
		}
		t.HeightStart = &v
	}
	if flags&(1<<5) != 0 {
		v, errr := readUint64(r)
		if errr != nil {
			return nil, errr
		}
		t.HeightEnd = &v
	}
	if flags&(1<<6) != 0 {
		v, errr := readUint64(r)
		if errr != nil {
			return nil, errr
		}
		t.OffsetStart = &v
	}
	if flags&(1<<7) != 0 {
		v, errr := readUint64(r)
		if errr != nil {
			return nil, errr
		}
		t.OffsetEnd = &v
	}
	return t, nil
}

func EncodeRuneEntry(e runetypes.RuneEntry) []byte {
	var w bytes.Buffer
	w.Write(EncodeRuneId(e.RuneId))
	putString(&w, e.Name)
	w.WriteByte(e.Divisibility)
	putUint32(&w, uint32(e.Symbol))
	putUint32(&w, e.Spacers)
	if e.Turbo {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	w.Write(e.Premine.Bytes())
	w.Write(EncodeTerms(e.Terms))
	putUint64(&w, e.Mints)
	w.Write(e.Burned.Bytes())
	if e.Reserved {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	return w.Bytes()
}

func DecodeRuneEntry(b []byte) (runetypes.RuneEntry, er.R) {
	if len(b) < 12 {
		return runetypes.RuneEntry{}, errShortBuffer.New("rune entry", nil)
	}
	id, err := DecodeRuneId(b[:12])
	if err != nil {
		return runetypes.RuneEntry{}, err
	}
	r := bytes.NewReader(b[12:])
	nameLen, errr := readUint64Narrow(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	nameBytes := make([]byte, nameLen)
	if _, e := io.ReadFull(r, nameBytes); e != nil && nameLen > 0 {
		return runetypes.RuneEntry{}, errShortBuffer.New("rune entry name", nil)
	}
	div, e := r.ReadByte()
	if e != nil {
		return runetypes.RuneEntry{}, errShortBuffer.New("rune entry divisibility", nil)
	}
	symU, errr := readUint32(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	spacers, errr := readUint32(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	turboB, e := r.ReadByte()
	if e != nil {
		return runetypes.RuneEntry{}, errShortBuffer.New("rune entry turbo", nil)
	}
	premine, errr := readLot(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	terms, errr := DecodeTerms(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	mints, errr := readUint64(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	burned, errr := readLot(r)
	if errr != nil {
		return runetypes.RuneEntry{}, errr
	}
	reservedB, e := r.ReadByte()
	if e != nil {
		return runetypes.RuneEntry{}, errShortBuffer.New("rune entry reserved", nil)
	}
	return runetypes.RuneEntry{
		RuneId:       id,
		Name:         string(nameBytes),
		Divisibility: div,
		Symbol:       rune(symU),
		Spacers:      spacers,
		Turbo:        turboB != 0,
		Premine:      premine,
		Terms:        terms,
		Mints:        mints,
		Burned:       burned,
		Reserved:     reservedB != 0,
	}, nil
}

func readUint32(r *bytes.Reader) (uint32, er.R) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errShortBuffer.New("uint32", nil)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64Narrow(r *bytes.Reader) (uint64, er.R) {
	v, err := readUint32(r)
	return uint64(v), err
}
