package runes

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/pkg/btcutils"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
)

// etchedRune is the rune a transaction etches. Its id is the location of the transaction.
type etchedRune struct {
	runeId runes.RuneId
	rune   runes.Rune
}

// etched returns the rune etched by the artifact, or nil if it does not etch one or the etching is invalid.
func (p *Processor) etched(ctx context.Context, ts *txState, artifact runes.Artifact) (*etchedRune, error) {
	var name *runes.Rune
	switch a := artifact.(type) {
	case *runes.Runestone:
		if a.Etching == nil {
			return nil, nil
		}
		name = a.Etching.Rune
	case *runes.Cenotaph:
		if a.Etching == nil {
			return nil, nil
		}
		name = a.Etching
	default:
		return nil, nil
	}

	height := uint64(ts.header.Height)
	var rune runes.Rune
	if name != nil {
		rune = *name
		minimumRune := runes.MinimumRuneAtHeight(p.network, height)
		if rune.Cmp(minimumRune) < 0 {
			logger.DebugContext(ctx, "Ignored etching below minimum rune", slogx.Stringer("rune", rune), slogx.Stringer("minimum", minimumRune))
			return nil, nil
		}
		if rune.IsReserved() {
			logger.DebugContext(ctx, "Ignored etching of reserved rune", slogx.Stringer("rune", rune))
			return nil, nil
		}

		_, err := ts.dg.GetRuneIdByRune(ctx, rune)
		if err == nil {
			logger.DebugContext(ctx, "Ignored etching of existing rune", slogx.Stringer("rune", rune))
			return nil, nil
		}
		if !errors.Is(err, errs.NotFound) {
			return nil, errors.Wrap(err, "failed to get rune id by rune")
		}

		ok, err := p.txCommitsToRune(ctx, ts, rune)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check rune commitment")
		}
		if !ok {
			logger.DebugContext(ctx, "Ignored etching without valid commitment", slogx.Stringer("rune", rune))
			return nil, nil
		}
	} else {
		reserved, err := ts.dg.GetStatistic(ctx, entity.StatisticReservedRunes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get reserved runes statistic")
		}
		if err := ts.dg.SetStatistic(ctx, entity.StatisticReservedRunes, reserved+1); err != nil {
			return nil, errors.Wrap(err, "failed to set reserved runes statistic")
		}
		rune = runes.GetReservedRune(height, ts.tx.Index)
	}

	runeId, err := runes.NewRuneId(height, ts.tx.Index)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create rune id")
	}
	return &etchedRune{runeId: runeId, rune: rune}, nil
}

// txCommitsToRune reports whether an input of the transaction reveals the rune's commitment in a tapscript
// and spends a taproot output with enough confirmations.
func (p *Processor) txCommitsToRune(ctx context.Context, ts *txState, rune runes.Rune) (bool, error) {
	commitment := rune.Commitment()
	for _, txIn := range ts.tx.TxIn {
		tapscript, ok := btcutils.Tapscript(txIn.Witness)
		if !ok {
			continue
		}

		tokenizer := txscript.MakeScriptTokenizer(0, tapscript)
		for tokenizer.Next() {
			if tokenizer.Opcode() > txscript.OP_PUSHDATA4 || !bytes.Equal(tokenizer.Data(), commitment) {
				continue
			}

			prevTx, prevTxHeight, err := p.bitcoinClient.GetRawTransactionAndHeightByTxHash(ctx, txIn.PreviousOutTxHash)
			if err != nil {
				return false, errors.Wrapf(err, "failed to get commit transaction %s", txIn.PreviousOutTxHash)
			}
			if int(txIn.PreviousOutIndex) >= len(prevTx.TxOut) {
				return false, errors.Wrapf(errs.InternalError, "commit transaction %s has no output %d", txIn.PreviousOutTxHash, txIn.PreviousOutIndex)
			}
			if !txscript.IsPayToTaproot(prevTx.TxOut[txIn.PreviousOutIndex].PkScript) {
				continue
			}

			confirmations := ts.header.Height - prevTxHeight + 1
			if confirmations >= runes.CommitConfirmations {
				return true, nil
			}
		}
		// tokenizer stops at the first malformed opcode
	}
	return false, nil
}

// createRuneEntry registers the etched rune. A cenotaph etches the rune without supply or terms.
func (p *Processor) createRuneEntry(ctx context.Context, ts *txState, artifact runes.Artifact, etched *etchedRune) error {
	number, err := ts.dg.GetStatistic(ctx, entity.StatisticRunes)
	if err != nil {
		return errors.Wrap(err, "failed to get runes statistic")
	}
	if err := ts.dg.SetStatistic(ctx, entity.StatisticRunes, number+1); err != nil {
		return errors.Wrap(err, "failed to set runes statistic")
	}
	if err := ts.dg.SetRuneIdByRune(ctx, etched.rune, etched.runeId); err != nil {
		return errors.Wrap(err, "failed to set rune id by rune")
	}
	if err := ts.dg.SetRuneByTxHash(ctx, ts.tx.TxHash, etched.rune); err != nil {
		return errors.Wrap(err, "failed to set rune by tx hash")
	}

	runeEntry := &runes.RuneEntry{
		RuneId:        etched.runeId,
		Number:        number,
		SpacedRune:    runes.NewSpacedRune(etched.rune, 0),
		Premine:       uint128.Zero,
		Mints:         uint128.Zero,
		BurnedAmount:  uint128.Zero,
		EtchingBlock:  uint64(ts.header.Height),
		EtchingTxHash: ts.tx.TxHash,
		EtchedAt:      ts.header.Timestamp,
	}
	if runestone, ok := artifact.(*runes.Runestone); ok {
		etching := runestone.Etching
		runeEntry.Divisibility = lo.FromPtr(etching.Divisibility)
		runeEntry.Premine = lo.FromPtr(etching.Premine)
		runeEntry.SpacedRune = runes.NewSpacedRune(etched.rune, lo.FromPtr(etching.Spacers))
		runeEntry.Symbol = lo.FromPtr(etching.Symbol)
		runeEntry.Terms = etching.Terms
		runeEntry.Turbo = etching.Turbo
	}
	if err := ts.dg.SetRuneEntry(ctx, runeEntry); err != nil {
		return errors.Wrap(err, "failed to set rune entry")
	}

	// an etching in the same transaction as inscription <txid>i0 links the rune to the inscription
	sequenceNumber, err := ts.dg.GetSequenceNumberByInscriptionId(ctx, ts.tx.TxHash, 0)
	switch {
	case err == nil:
		if err := ts.dg.SetRuneIdBySequenceNumber(ctx, sequenceNumber, etched.runeId); err != nil {
			return errors.Wrap(err, "failed to set rune id by sequence number")
		}
	case !errors.Is(err, errs.NotFound):
		return errors.Wrap(err, "failed to get sequence number by inscription id")
	}

	ts.emit(event.Event{
		Type:   event.TypeRuneEtched,
		RuneId: lo.ToPtr(etched.runeId),
		Etched: &event.Etched{
			SpacedRune:   runeEntry.SpacedRune,
			Number:       runeEntry.Number,
			Divisibility: runeEntry.Divisibility,
			Premine:      runeEntry.Premine,
			Symbol:       runeEntry.Symbol,
			Terms:        runeEntry.Terms,
			Turbo:        runeEntry.Turbo,
		},
	})
	return nil
}
