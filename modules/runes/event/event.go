// Package event defines the audit events emitted while settling runes and the
// channel-based emitter that delivers them to a consumer.
package event

import (
	"encoding/json"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

type Type string

const (
	TypeBlockStart    Type = "block_start"
	TypeBlockEnd      Type = "block_end"
	TypeReorgDetected Type = "reorg_detected"

	TypeRuneEtched      Type = "rune_etched"
	TypeRuneMinted      Type = "rune_minted"
	TypeRuneBurned      Type = "rune_burned"
	TypeRuneUtxoSpent   Type = "rune_utxo_spent"
	TypeRuneUtxoCreated Type = "rune_utxo_created"
	TypeRuneDebited     Type = "rune_debited"
	TypeRuneCredited    Type = "rune_credited"
)

// Class decides the delivery guarantee of an event.
type Class uint8

const (
	// ClassLedger events change balances or ownership and are never dropped.
	ClassLedger Class = iota
	// ClassTelemetry events are informational and are dropped when the consumer lags.
	ClassTelemetry
)

func (t Type) Class() Class {
	if t == TypeRuneMinted {
		return ClassTelemetry
	}
	return ClassLedger
}

// ClosesBatch reports whether t is the last event of a block or reorg batch.
func (t Type) ClosesBatch() bool {
	return t == TypeBlockEnd || t == TypeReorgDetected
}

// Etched describes the rune created by a RuneEtched event.
type Etched struct {
	SpacedRune   runes.SpacedRune
	Number       uint64
	Divisibility uint8
	Premine      uint128.Uint128
	Symbol       rune
	Terms        *runes.Terms
	Turbo        bool
}

// Event is a single state change. Optional fields are set according to Type:
//
//   - RuneEtched: RuneId, Etched
//   - RuneMinted, RuneBurned: RuneId, Amount
//   - RuneUtxoSpent, RuneUtxoCreated: OutPoint, Address
//   - RuneDebited, RuneCredited: RuneId, Amount, Address
//   - BlockEnd: EventCount, EventHash
//   - ReorgDetected: Depth
type Event struct {
	Type        Type
	BlockHeight uint64
	BlockHash   chainhash.Hash
	TxIndex     *uint32
	TxHash      *chainhash.Hash

	RuneId   *runes.RuneId
	Amount   *uint128.Uint128
	OutPoint *wire.OutPoint
	Address  *string
	Etched   *Etched

	EventCount uint64
	EventHash  *chainhash.Hash
	Depth      uint64
}

type termsJSON struct {
	Amount      *string `json:"amount,omitempty"`
	Cap         *string `json:"cap,omitempty"`
	HeightStart *uint64 `json:"heightStart,omitempty"`
	HeightEnd   *uint64 `json:"heightEnd,omitempty"`
	OffsetStart *uint64 `json:"offsetStart,omitempty"`
	OffsetEnd   *uint64 `json:"offsetEnd,omitempty"`
}

type etchedJSON struct {
	Rune         string     `json:"rune"`
	Number       uint64     `json:"number"`
	Divisibility uint8      `json:"divisibility"`
	Premine      string     `json:"premine"`
	Symbol       string     `json:"symbol"`
	Terms        *termsJSON `json:"terms,omitempty"`
	Turbo        bool       `json:"turbo"`
}

type eventJSON struct {
	Type        Type          `json:"type"`
	BlockHeight uint64        `json:"blockHeight"`
	BlockHash   string        `json:"blockHash"`
	TxIndex     *uint32       `json:"txIndex,omitempty"`
	TxHash      *string       `json:"txHash,omitempty"`
	RuneId      *runes.RuneId `json:"runeId,omitempty"`
	Amount      *string       `json:"amount,omitempty"`
	OutPoint    *string       `json:"outPoint,omitempty"`
	Address     *string       `json:"address,omitempty"`
	Etched      *etchedJSON   `json:"etched,omitempty"`
	EventCount  *uint64       `json:"eventCount,omitempty"`
	EventHash   *string       `json:"eventHash,omitempty"`
	Depth       *uint64       `json:"depth,omitempty"`
}

func stringPtr[T interface{ String() string }](v *T) *string {
	if v == nil {
		return nil
	}
	return lo.ToPtr((*v).String())
}

// MarshalJSON renders amounts as decimal strings and hashes in their usual hex form.
// New fields are only ever added, so consumers can ignore what they do not know.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Type:        e.Type,
		BlockHeight: e.BlockHeight,
		BlockHash:   e.BlockHash.String(),
		TxIndex:     e.TxIndex,
		TxHash:      stringPtr(e.TxHash),
		RuneId:      e.RuneId,
		Amount:      stringPtr(e.Amount),
		OutPoint:    stringPtr(e.OutPoint),
		Address:     e.Address,
		EventHash:   stringPtr(e.EventHash),
	}
	if e.Etched != nil {
		out.Etched = &etchedJSON{
			Rune:         e.Etched.SpacedRune.String(),
			Number:       e.Etched.Number,
			Divisibility: e.Etched.Divisibility,
			Premine:      e.Etched.Premine.String(),
			Symbol:       string(e.Etched.Symbol),
			Turbo:        e.Etched.Turbo,
		}
		if t := e.Etched.Terms; t != nil {
			out.Etched.Terms = &termsJSON{
				Amount:      stringPtr(t.Amount),
				Cap:         stringPtr(t.Cap),
				HeightStart: t.HeightStart,
				HeightEnd:   t.HeightEnd,
				OffsetStart: t.OffsetStart,
				OffsetEnd:   t.OffsetEnd,
			}
		}
	}
	switch e.Type {
	case TypeBlockEnd:
		out.EventCount = lo.ToPtr(e.EventCount)
	case TypeReorgDetected:
		out.Depth = lo.ToPtr(e.Depth)
	}
	return json.Marshal(out)
}

func parsePtr[T any](s *string, parse func(string) (T, error)) (*T, error) {
	if s == nil {
		return nil, nil
	}
	v, err := parse(*s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &v, nil
}

func parseHash(s string) (chainhash.Hash, error) {
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, errors.Wrapf(err, "invalid hash %q", s)
	}
	return *hash, nil
}

func parseOutPoint(s string) (wire.OutPoint, error) {
	outPoint, err := wire.NewOutPointFromString(s)
	if err != nil {
		return wire.OutPoint{}, errors.Wrapf(err, "invalid outpoint %q", s)
	}
	return *outPoint, nil
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.WithStack(err)
	}
	blockHash, err := parseHash(in.BlockHash)
	if err != nil {
		return errors.Wrap(err, "blockHash")
	}
	out := Event{
		Type:        in.Type,
		BlockHeight: in.BlockHeight,
		BlockHash:   blockHash,
		TxIndex:     in.TxIndex,
		RuneId:      in.RuneId,
		Address:     in.Address,
		EventCount:  lo.FromPtr(in.EventCount),
		Depth:       lo.FromPtr(in.Depth),
	}
	if out.TxHash, err = parsePtr(in.TxHash, parseHash); err != nil {
		return errors.Wrap(err, "txHash")
	}
	if out.EventHash, err = parsePtr(in.EventHash, parseHash); err != nil {
		return errors.Wrap(err, "eventHash")
	}
	if out.Amount, err = parsePtr(in.Amount, uint128.FromString); err != nil {
		return errors.Wrap(err, "amount")
	}
	if out.OutPoint, err = parsePtr(in.OutPoint, parseOutPoint); err != nil {
		return errors.Wrap(err, "outPoint")
	}
	if in.Etched != nil {
		etched, err := in.Etched.toEtched()
		if err != nil {
			return errors.Wrap(err, "etched")
		}
		out.Etched = etched
	}
	*e = out
	return nil
}

func (in etchedJSON) toEtched() (*Etched, error) {
	spacedRune, err := runes.NewSpacedRuneFromString(in.Rune)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	premine, err := uint128.FromString(in.Premine)
	if err != nil {
		return nil, errors.Wrap(err, "premine")
	}
	etched := &Etched{
		SpacedRune:   spacedRune,
		Number:       in.Number,
		Divisibility: in.Divisibility,
		Premine:      premine,
		Turbo:        in.Turbo,
	}
	if symbol := []rune(in.Symbol); len(symbol) > 0 {
		etched.Symbol = symbol[0]
	}
	if t := in.Terms; t != nil {
		terms := &runes.Terms{
			HeightStart: t.HeightStart,
			HeightEnd:   t.HeightEnd,
			OffsetStart: t.OffsetStart,
			OffsetEnd:   t.OffsetEnd,
		}
		if terms.Amount, err = parsePtr(t.Amount, uint128.FromString); err != nil {
			return nil, errors.Wrap(err, "terms amount")
		}
		if terms.Cap, err = parsePtr(t.Cap, uint128.FromString); err != nil {
			return nil, errors.Wrap(err, "terms cap")
		}
		etched.Terms = terms
	}
	return etched, nil
}
