package runes

import (
	"encoding/binary"
	"slices"

	"github.com/btcsuite/btcd/txscript"
	"github.com/gaze-network/runes-settlement/pkg/leb128"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

// Encipher encodes a runestone into an OP_RETURN output script.
func (r Runestone) Encipher() ([]byte, error) {
	var payload []byte
	put := func(values ...uint128.Uint128) {
		for _, v := range values {
			payload = leb128.AppendUint128(payload, v)
		}
	}
	putField := func(tag Tag, value uint128.Uint128) {
		put(tag.Uint128(), value)
	}
	putOptional := func(tag Tag, value *uint64) {
		if value != nil {
			putField(tag, uint128.From64(*value))
		}
	}

	if e := r.Etching; e != nil {
		flags := Flags(uint128.Zero)
		flags.Set(FlagEtching)
		if e.Terms != nil {
			flags.Set(FlagTerms)
		}
		if e.Turbo {
			flags.Set(FlagTurbo)
		}
		putField(TagFlags, flags.Uint128())
		if e.Rune != nil {
			putField(TagRune, e.Rune.Uint128())
		}
		if e.Divisibility != nil {
			putField(TagDivisibility, uint128.From64(uint64(*e.Divisibility)))
		}
		if e.Spacers != nil {
			putField(TagSpacers, uint128.From64(uint64(*e.Spacers)))
		}
		if e.Symbol != nil {
			putField(TagSymbol, uint128.From64(uint64(*e.Symbol)))
		}
		if e.Premine != nil {
			putField(TagPremine, *e.Premine)
		}
		if t := e.Terms; t != nil {
			if t.Amount != nil {
				putField(TagAmount, *t.Amount)
			}
			if t.Cap != nil {
				putField(TagCap, *t.Cap)
			}
			putOptional(TagHeightStart, t.HeightStart)
			putOptional(TagHeightEnd, t.HeightEnd)
			putOptional(TagOffsetStart, t.OffsetStart)
			putOptional(TagOffsetEnd, t.OffsetEnd)
		}
	}
	if r.Mint != nil {
		putField(TagMint, uint128.From64(r.Mint.BlockHeight))
		putField(TagMint, uint128.From64(uint64(r.Mint.TxIndex)))
	}
	if r.Pointer != nil {
		putField(TagPointer, uint128.From64(uint64(*r.Pointer)))
	}
	if len(r.Edicts) > 0 {
		put(TagBody.Uint128())
		edicts := slices.Clone(r.Edicts)
		slices.SortStableFunc(edicts, func(a, b Edict) int { return a.Id.Cmp(b.Id) })
		var previous RuneId
		for _, edict := range edicts {
			block, tx := previous.Delta(edict.Id)
			put(uint128.From64(block), uint128.From64(uint64(tx)), edict.Amount, uint128.From64(uint64(edict.Output)))
			previous = edict.Id
		}
	}

	script := []byte{txscript.OP_RETURN, MagicNumber}
	for _, chunk := range lo.Chunk(payload, txscript.MaxScriptElementSize) {
		script = appendPush(script, chunk)
	}
	return script, nil
}

// appendPush appends data with an explicit push opcode. ScriptBuilder.AddData is not used
// because it turns single bytes into small integer opcodes, which are not data pushes.
func appendPush(script []byte, data []byte) []byte {
	switch n := len(data); {
	case n <= txscript.OP_DATA_75:
		script = append(script, byte(n))
	case n <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(n))
	default:
		script = append(script, txscript.OP_PUSHDATA2)
		script = binary.LittleEndian.AppendUint16(script, uint16(n))
	}
	return append(script, data...)
}
