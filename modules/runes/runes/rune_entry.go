package runes

import (
	"math"
	"time"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

// RuneEntry is the registry record of an etched rune.
type RuneEntry struct {
	RuneId RuneId
	// Number is the etching order of the rune, starting from 0.
	Number       uint64
	Divisibility uint8
	// Premine is the amount of the rune that was premined.
	Premine    uint128.Uint128
	SpacedRune SpacedRune
	Symbol     rune
	// Terms is the minting terms of the rune.
	Terms *Terms
	Turbo bool
	// Mints is the number of times that this rune has been minted.
	Mints         uint128.Uint128
	BurnedAmount  uint128.Uint128
	EtchingBlock  uint64
	EtchingTxHash chainhash.Hash
	EtchedAt      time.Time
}

var (
	ErrUnmintable      = errors.New("rune is not mintable")
	ErrMintCapReached  = errors.New("rune mint cap reached")
	ErrMintBeforeStart = errors.New("rune minting has not started")
	ErrMintAfterEnd    = errors.New("rune minting has ended")
)

// GetMintableAmount returns the amount a single mint at the given height would produce,
// or why the rune cannot be minted at that height.
func (e *RuneEntry) GetMintableAmount(height uint64) (uint128.Uint128, error) {
	if e.Terms == nil {
		return uint128.Uint128{}, ErrUnmintable
	}
	if !e.IsMintStarted(height) {
		return uint128.Uint128{}, ErrMintBeforeStart
	}
	if e.IsMintEnded(height) {
		return uint128.Uint128{}, ErrMintAfterEnd
	}
	if e.Mints.Cmp(lo.FromPtr(e.Terms.Cap)) >= 0 {
		return uint128.Uint128{}, ErrMintCapReached
	}
	return lo.FromPtr(e.Terms.Amount), nil
}

func (e *RuneEntry) IsMintStarted(height uint64) bool {
	if e.Terms == nil {
		return false
	}

	var relative, absolute uint64
	if e.Terms.OffsetStart != nil {
		relative = saturatingAdd(e.RuneId.BlockHeight, *e.Terms.OffsetStart)
	}
	if e.Terms.HeightStart != nil {
		absolute = *e.Terms.HeightStart
	}

	return height >= max(relative, absolute)
}

func (e *RuneEntry) IsMintEnded(height uint64) bool {
	if e.Terms == nil {
		return false
	}

	var relative, absolute uint64 = math.MaxUint64, math.MaxUint64
	if e.Terms.OffsetEnd != nil {
		relative = saturatingAdd(e.RuneId.BlockHeight, *e.Terms.OffsetEnd)
	}
	if e.Terms.HeightEnd != nil {
		absolute = *e.Terms.HeightEnd
	}

	return height >= min(relative, absolute)
}

func (e RuneEntry) Supply() (uint128.Uint128, error) {
	terms := utils.Default(e.Terms, &Terms{})
	return supply(e.Premine, lo.FromPtr(terms.Amount), lo.FromPtr(terms.Cap))
}

// MintedAmount is premine + mints * amount.
func (e RuneEntry) MintedAmount() (uint128.Uint128, error) {
	terms := utils.Default(e.Terms, &Terms{})
	return supply(e.Premine, lo.FromPtr(terms.Amount), e.Mints)
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
