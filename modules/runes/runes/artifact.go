package runes

// Artifact is the decoded runes payload of a transaction. It is either a *Runestone or a *Cenotaph.
type Artifact interface {
	artifact()
}

// Runestone is a well-formed runes message.
type Runestone struct {
	// Edicts to execute, in order
	Edicts []Edict
	// Rune to etch in this transaction
	Etching *Etching
	// Rune to mint in this transaction
	Mint *RuneId
	// Output to receive unallocated runes. If nil, the first non-OP_RETURN output is used.
	Pointer *uint32
}

// Cenotaph is a malformed runes message. Every input rune is burned, mints are burned and
// the named rune, if any, is etched without supply.
type Cenotaph struct {
	Etching *Rune
	Mint    *RuneId
	Flaws   Flaws
}

func (*Runestone) artifact() {}
func (*Cenotaph) artifact()  {}

// ArtifactMint returns the rune id an artifact mints, if any.
func ArtifactMint(artifact Artifact) *RuneId {
	switch a := artifact.(type) {
	case *Runestone:
		return a.Mint
	case *Cenotaph:
		return a.Mint
	}
	return nil
}
