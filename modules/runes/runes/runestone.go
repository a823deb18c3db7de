package runes

import (
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/pkg/leb128"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

const (
	// MagicNumber follows OP_RETURN in a runestone output script.
	MagicNumber = txscript.OP_13

	// CommitConfirmations is the number of confirmations the commitment of a named etching needs.
	CommitConfirmations = 6
)

// Decoder turns a transaction into its runes artifact. A nil artifact means the
// transaction carries no runestone.
type Decoder interface {
	Decipher(tx *types.Transaction) (Artifact, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(tx *types.Transaction) (Artifact, error)

func (f DecoderFunc) Decipher(tx *types.Transaction) (Artifact, error) {
	return f(tx)
}

// DefaultDecoder deciphers runestones from the first OP_RETURN OP_13 output of a transaction.
var DefaultDecoder Decoder = DecoderFunc(DecipherRunestone)

// DecipherRunestone decodes the runestone of tx, returning a *Runestone, a *Cenotaph, or nil
// if tx has no runestone output.
func DecipherRunestone(tx *types.Transaction) (Artifact, error) {
	payload, found, flaws := runestonePayload(tx)
	if !found {
		return nil, nil
	}
	if flaws != 0 {
		return &Cenotaph{Flaws: flaws}, nil
	}

	integers, err := decodeIntegers(payload)
	if err != nil {
		return &Cenotaph{Flaws: FlawFlagVarInt.Mask()}, nil
	}

	edicts, fields, flaws := parseMessage(tx, integers)

	flags := Flags(lo.FromPtr(fields.takeUint128(TagFlags)))

	var etching *Etching
	if flags.Take(FlagEtching) {
		etching = &Etching{}
		fields.take(TagDivisibility, 1, func(v []uint128.Uint128) bool {
			if v[0].Cmp64(uint64(maxDivisibility)) > 0 {
				return false
			}
			etching.Divisibility = lo.ToPtr(v[0].Uint8())
			return true
		})
		etching.Premine = fields.takeUint128(TagPremine)
		etching.Rune = (*Rune)(fields.takeUint128(TagRune))
		fields.take(TagSpacers, 1, func(v []uint128.Uint128) bool {
			if v[0].Cmp64(uint64(maxSpacers)) > 0 {
				return false
			}
			etching.Spacers = lo.ToPtr(v[0].Uint32())
			return true
		})
		fields.take(TagSymbol, 1, func(v []uint128.Uint128) bool {
			if !v[0].IsUint64() || v[0].Uint64() > utf8.MaxRune || !utf8.ValidRune(rune(v[0].Uint64())) {
				return false
			}
			etching.Symbol = lo.ToPtr(rune(v[0].Uint64()))
			return true
		})
		if flags.Take(FlagTerms) {
			etching.Terms = &Terms{
				Cap:         fields.takeUint128(TagCap),
				HeightStart: fields.takeUint64(TagHeightStart),
				HeightEnd:   fields.takeUint64(TagHeightEnd),
				Amount:      fields.takeUint128(TagAmount),
				OffsetStart: fields.takeUint64(TagOffsetStart),
				OffsetEnd:   fields.takeUint64(TagOffsetEnd),
			}
		}
		etching.Turbo = flags.Take(FlagTurbo)
	}

	var mint *RuneId
	fields.take(TagMint, 2, func(v []uint128.Uint128) bool {
		if !v[0].IsUint64() || v[1].Cmp64(uint64(^uint32(0))) > 0 {
			return false
		}
		id, err := NewRuneId(v[0].Uint64(), v[1].Uint32())
		if err != nil {
			return false
		}
		mint = &id
		return true
	})

	var pointer *uint32
	fields.take(TagPointer, 1, func(v []uint128.Uint128) bool {
		if v[0].Cmp64(uint64(len(tx.TxOut))) >= 0 {
			return false
		}
		pointer = lo.ToPtr(v[0].Uint32())
		return true
	})

	if etching != nil {
		if _, err := etching.Supply(); err != nil {
			flaws |= FlawFlagSupplyOverflow.Mask()
		}
	}
	if !flags.Uint128().IsZero() {
		flaws |= FlawFlagUnrecognizedFlag.Mask()
	}
	if fields.hasEvenTag() {
		flaws |= FlawFlagUnrecognizedEvenTag.Mask()
	}

	if flaws != 0 {
		cenotaph := &Cenotaph{Flaws: flaws, Mint: mint}
		if etching != nil {
			cenotaph.Etching = etching.Rune
		}
		return cenotaph, nil
	}
	return &Runestone{
		Edicts:  edicts,
		Etching: etching,
		Mint:    mint,
		Pointer: pointer,
	}, nil
}

// runestonePayload concatenates the data pushes of the first output whose script starts with
// OP_RETURN OP_13. Any other opcode after the magic number is a flaw.
func runestonePayload(tx *types.Transaction) (payload []byte, found bool, flaws Flaws) {
	for _, output := range tx.TxOut {
		tokenizer := txscript.MakeScriptTokenizer(0, output.PkScript)
		if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
			continue
		}
		if !tokenizer.Next() || tokenizer.Opcode() != MagicNumber {
			continue
		}

		payload = make([]byte, 0, len(output.PkScript))
		for tokenizer.Next() {
			if !isDataPush(tokenizer.Opcode()) {
				return nil, true, FlawFlagOpCode.Mask()
			}
			payload = append(payload, tokenizer.Data()...)
		}
		if tokenizer.Err() != nil {
			return nil, true, FlawFlagInvalidScript.Mask()
		}
		return payload, true, 0
	}
	return nil, false, 0
}

// isDataPush includes OP_0, OP_DATA_1 to OP_DATA_75 and OP_PUSHDATA1/2/4.
func isDataPush(opcode byte) bool {
	return opcode <= txscript.OP_PUSHDATA4
}

func decodeIntegers(payload []byte) ([]uint128.Uint128, error) {
	integers := make([]uint128.Uint128, 0, len(payload))
	for i := 0; i < len(payload); {
		n, length, err := leb128.DecodeUint128(payload[i:])
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode varint")
		}
		integers = append(integers, n)
		i += length
	}
	return integers, nil
}

// parseMessage splits the integers into tag/value fields and, after TagBody, edicts of four
// integers each: block delta, tx delta, amount, output.
func parseMessage(tx *types.Transaction, integers []uint128.Uint128) ([]Edict, Fields, Flaws) {
	var (
		edicts []Edict
		fields = make(Fields)
		flaws  Flaws
	)
	for i := 0; i < len(integers); i += 2 {
		tag := integers[i]
		if tag.Equals64(uint64(TagBody)) {
			var id RuneId
			for _, chunk := range lo.Chunk(integers[i+1:], 4) {
				if len(chunk) != 4 {
					flaws |= FlawFlagTrailingIntegers.Mask()
					break
				}
				next, ok := nextRuneId(id, chunk[0], chunk[1])
				if !ok {
					flaws |= FlawFlagEdictRuneId.Mask()
					break
				}
				output := chunk[3]
				if output.Cmp64(uint64(len(tx.TxOut))) > 0 {
					flaws |= FlawFlagEdictOutput.Mask()
					break
				}
				id = next
				edicts = append(edicts, Edict{
					Id:     next,
					Amount: chunk[2],
					Output: output.Uint32(),
				})
			}
			break
		}
		if i+1 >= len(integers) {
			flaws |= FlawFlagTruncatedField.Mask()
			break
		}
		fields.push(tag, integers[i+1])
	}
	return edicts, fields, flaws
}

func nextRuneId(id RuneId, blockDelta, txDelta uint128.Uint128) (RuneId, bool) {
	if !blockDelta.IsUint64() || txDelta.Cmp64(uint64(^uint32(0))) > 0 {
		return RuneId{}, false
	}
	next, err := id.Next(blockDelta.Uint64(), txDelta.Uint32())
	if err != nil {
		return RuneId{}, false
	}
	return next, true
}
