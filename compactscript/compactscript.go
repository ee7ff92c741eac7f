// Package compactscript implements the CompactScript codec: the
// reversible mapping between a canonical P2TR/P2WPKH/P2WSH scriptPubKey and
// its (kind, body) compact form, built on the opcode constants exported by
// btcsuite/btcd/txscript.
package compactscript

import (
	"github.com/btcsuite/btcd/txscript"

	"github.com/pktrune/coreindex/runetypes"
)

// TryFromScript converts a scriptPubKey into a CompactScript, returning
// ok=false for anything other than a v0 P2WPKH/P2WSH or v1 P2TR witness
// program.
func TryFromScript(script []byte) (runetypes.CompactScript, bool) {
	switch {
	case len(script) == 34 && script[0] == txscript.OP_1 && script[1] == txscript.OP_DATA_32:
		return runetypes.CompactScript{Kind: runetypes.KindP2TR, Body: cloneBody(script[2:34])}, true
	case len(script) == 22 && script[0] == txscript.OP_0 && script[1] == txscript.OP_DATA_20:
		return runetypes.CompactScript{Kind: runetypes.KindP2WPKH, Body: cloneBody(script[2:22])}, true
	case len(script) == 34 && script[0] == txscript.OP_0 && script[1] == txscript.OP_DATA_32:
		return runetypes.CompactScript{Kind: runetypes.KindP2WSH, Body: cloneBody(script[2:34])}, true
	default:
		return runetypes.CompactScript{}, false
	}
}

// ToScript reconstructs the scriptPubKey for c: the kind selects the
// witness version opcode, the body is pushed as-is. It returns ok=false
// when c.Body's length falls outside [1,32] or c.Kind is not one of the
// three known kinds; the exact per-kind lengths are a property of parsing,
// not reconstruction.
func ToScript(c runetypes.CompactScript) ([]byte, bool) {
	if len(c.Body) < 1 || len(c.Body) > 32 {
		return nil, false
	}
	switch c.Kind {
	case runetypes.KindP2TR:
		return buildWitnessProgram(txscript.OP_1, c.Body), true
	case runetypes.KindP2WPKH, runetypes.KindP2WSH:
		return buildWitnessProgram(txscript.OP_0, c.Body), true
	default:
		return nil, false
	}
}

func buildWitnessProgram(version byte, body []byte) []byte {
	out := make([]byte, 0, 2+len(body))
	out = append(out, version, dataPushOpcode(len(body)))
	out = append(out, body...)
	return out
}

// dataPushOpcode returns the OP_DATA_n opcode for a direct push of n bytes,
// n in [1,32]; the witness programs this codec handles are always pushed
// this way (never via OP_PUSHDATA1).
func dataPushOpcode(n int) byte {
	return txscript.OP_DATA_1 + byte(n-1)
}

func cloneBody(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
