package runetypes

// Edict is a single transfer instruction inside a runestone: move amount
// units of id to output (or the len(outputs) sentinel meaning "distribute
// the remainder").
type Edict struct {
	Id     RuneId
	Amount Lot
	Output uint32
}

// Terms describes the open-mint configuration of an etching, plus the two
// authority-flag toggles that seed the rune's initial AuthorityBits.
type Terms struct {
	AllowMinting      bool
	AllowBlacklisting bool

	// Open-mint limits; a nil Amount/Cap/Height/Offset field means the
	// corresponding limit is absent.
	Amount      *Lot
	Cap         *Lot
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Etching carries the fields of an etch operation, all optional except
// Turbo which defaults false.
type Etching struct {
	Rune         *RuneName
	Divisibility *uint8
	Terms        *Terms
	Premine      Lot
	Spacers      *uint32
	Symbol       *rune
	Turbo        bool
}

// RuneName is the decoded, un-spaced rune name together with its numeric
// value used for minimum/reserved-name comparisons. The exact base-26
// encoding is owned by the external runestone codec; this core only
// compares and stores the decoded value.
type RuneName struct {
	Value uint64
	Text  string
}

// SetAuthority carries a request to (re)assign one or more authority roles
// to a new scriptPubKey, compact-encoded as raw body bytes whose kind is
// inherited from the rune's current Master authority.
type SetAuthority struct {
	Authorities         AuthorityBits
	ScriptPubKeyCompact []byte
}

// AuthorityEntry is a raw [kind][body] pair as it appears in an
// AuthorityUpdates list, before it has been validated/reconstructed.
type AuthorityEntry struct {
	Kind ScriptKind
	Body []byte
}

// Encode serializes e into the `[kind][body]` wire form stored in the
// minter/blacklist multimaps. An entry with no body is the "empty" entry
// the executor ignores rather than writes.
func (e AuthorityEntry) Encode() []byte {
	if len(e.Body) == 0 {
		return nil
	}
	out := make([]byte, 0, 1+len(e.Body))
	out = append(out, byte(e.Kind))
	out = append(out, e.Body...)
	return out
}

// AuthorityUpdates carries the minter-roster and blacklist-roster mutation
// lists of a runestone.
type AuthorityUpdates struct {
	AddMinter    []AuthorityEntry
	RemoveMinter []AuthorityEntry
	Blacklist    []AuthorityEntry
	Unblacklist  []AuthorityEntry
}

// Runestone is the decoded form of a well-formed rune operation.
type Runestone struct {
	Edicts       []Edict
	Etching      *Etching
	Mint         *RuneId
	Pointer      *uint32
	SetAuthority *SetAuthority
	Authority    *AuthorityUpdates
}

// Cenotaph is the decoded form of a malformed runestone: its only semantic
// effect is to burn unallocated balances, though it may still etch a rune
// if the transaction carries a valid commitment.
type Cenotaph struct {
	Etching *Etching
	Mint    *RuneId
}

// Artifact is the result of deciphering a transaction: either a well-formed
// Runestone, a Cenotaph, or nothing at all (tx carries no runestone).
type Artifact struct {
	Runestone *Runestone
	Cenotaph  *Cenotaph
}

func (a *Artifact) IsCenotaph() bool {
	return a != nil && a.Cenotaph != nil
}
