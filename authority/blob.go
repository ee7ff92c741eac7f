package authority

import (
	"github.com/pktrune/coreindex/compactscript"
	"github.com/pktrune/coreindex/pktlog/log"
	"github.com/pktrune/coreindex/runetypes"
)

// scriptSlot is one (kind, body) pair as laid out in the authority_scripts
// blob, kind byte matching runetypes' P2WPKH=0/P2WSH=1/P2TR=2 enum.
type scriptSlot struct {
	kind runetypes.ScriptKind
	body []byte
}

// decodeScriptsBlob parses the `[presence_byte, (kind,len,body)*]` blob
// into a presence set and the per-kind slots actually present. Malformed
// trailing data stops the walk and is warned about rather than erroring,
// per the "malformed persisted data" handling rule.
func decodeScriptsBlob(blob []byte) (runetypes.AuthorityBits, map[runetypes.AuthorityBits]scriptSlot) {
	slots := make(map[runetypes.AuthorityBits]scriptSlot)
	if len(blob) == 0 {
		return 0, slots
	}
	presence := runetypes.AuthorityBits(blob[0]) & runetypes.AllBits
	offset := 1
	for _, kindBit := range runetypes.AuthorityKindOrder() {
		if presence&kindBit == 0 {
			continue
		}
		if offset+2 > len(blob) {
			log.Warnf("authority scripts blob truncated before kind/len header")
			break
		}
		kindByte := blob[offset]
		bodyLen := int(blob[offset+1])
		if kindByte > byte(runetypes.KindP2TR) {
			// Unknown kind: skip this slot but advance by the declared
			// length so later slots can still be recovered.
			offset += 2 + bodyLen
			continue
		}
		if bodyLen == 0 || bodyLen > 32 || offset+2+bodyLen > len(blob) {
			log.Warnf("authority scripts blob has invalid body length %d", bodyLen)
			break
		}
		body := make([]byte, bodyLen)
		copy(body, blob[offset+2:offset+2+bodyLen])
		slots[kindBit] = scriptSlot{kind: runetypes.ScriptKind(kindByte), body: body}
		offset += 2 + bodyLen
	}
	return presence, slots
}

// encodeScriptsBlob re-emits the blob in canonical Mint->Blacklist->Master
// order from a decoded slot map, rather than patching byte offsets in
// place. This is the defensive re-encode the design notes call for: any
// out-of-order blob written by a prior bug is normalized on the next
// SetAuthority instead of propagated.
func encodeScriptsBlob(presence runetypes.AuthorityBits, slots map[runetypes.AuthorityBits]scriptSlot) []byte {
	out := []byte{byte(presence & runetypes.AllBits)}
	for _, kindBit := range runetypes.AuthorityKindOrder() {
		if presence&kindBit == 0 {
			continue
		}
		slot, ok := slots[kindBit]
		if !ok {
			continue
		}
		out = append(out, byte(slot.kind), byte(len(slot.body)))
		out = append(out, slot.body...)
	}
	return out
}

func slotToCompact(s scriptSlot) runetypes.CompactScript {
	return runetypes.CompactScript{Kind: s.kind, Body: s.body}
}

// decodeEntryToScript reconstructs the scriptPubKey for a raw `[kind][body]`
// multimap entry, or (nil, false) when malformed: unknown kind, or body
// length outside [1,32].
func decodeEntryToScript(raw []byte) ([]byte, bool) {
	if len(raw) < 2 {
		return nil, false
	}
	kind := runetypes.ScriptKind(raw[0])
	if !kind.Valid() {
		return nil, false
	}
	script, ok := compactscript.ToScript(runetypes.CompactScript{Kind: kind, Body: raw[1:]})
	if !ok {
		return nil, false
	}
	return script, true
}
