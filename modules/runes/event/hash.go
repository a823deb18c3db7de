package event

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashVersion is bumped whenever the serialization below changes.
const HashVersion = 1

// Hasher folds the events of one block into a deterministic digest. Two indexers that
// processed the same block the same way produce the same hash.
type Hasher struct {
	sb    strings.Builder
	count uint64
}

func NewHasher(blockHash chainhash.Hash) *Hasher {
	h := &Hasher{}
	h.sb.WriteString("payload:v" + strconv.Itoa(HashVersion) + ":")
	h.sb.WriteString("blockHash:" + blockHash.String() + ";")
	return h
}

func (h *Hasher) Add(ev Event) {
	h.count++
	sb := &h.sb
	sb.WriteString(string(ev.Type) + ":")
	if ev.TxIndex != nil {
		sb.WriteString("txIndex:" + strconv.FormatUint(uint64(*ev.TxIndex), 10))
	}
	if ev.TxHash != nil {
		sb.WriteString("txHash:" + ev.TxHash.String())
	}
	if ev.RuneId != nil {
		sb.WriteString("runeId:" + ev.RuneId.String())
	}
	if ev.Amount != nil {
		sb.WriteString("amount:" + ev.Amount.String())
	}
	if ev.OutPoint != nil {
		sb.WriteString("outPoint:" + ev.OutPoint.String())
	}
	if ev.Address != nil {
		sb.WriteString("address:" + *ev.Address)
	}
	if e := ev.Etched; e != nil {
		sb.WriteString("rune:" + e.SpacedRune.Rune.String())
		sb.WriteString("spacers:" + strconv.FormatUint(uint64(e.SpacedRune.Spacers), 10))
		sb.WriteString("number:" + strconv.FormatUint(e.Number, 10))
		sb.WriteString("divisibility:" + strconv.Itoa(int(e.Divisibility)))
		sb.WriteString("premine:" + e.Premine.String())
		sb.WriteString("symbol:" + string(e.Symbol))
		if t := e.Terms; t != nil {
			sb.WriteString("terms:")
			if t.Amount != nil {
				sb.WriteString("amount:" + t.Amount.String())
			}
			if t.Cap != nil {
				sb.WriteString("cap:" + t.Cap.String())
			}
			writeOptionalUint64(sb, "heightStart:", t.HeightStart)
			writeOptionalUint64(sb, "heightEnd:", t.HeightEnd)
			writeOptionalUint64(sb, "offsetStart:", t.OffsetStart)
			writeOptionalUint64(sb, "offsetEnd:", t.OffsetEnd)
		}
		sb.WriteString("turbo:" + strconv.FormatBool(e.Turbo))
	}
	sb.WriteString(";")
}

// Count returns the number of events added.
func (h *Hasher) Count() uint64 {
	return h.count
}

func (h *Hasher) Sum() chainhash.Hash {
	return chainhash.DoubleHashH([]byte(h.sb.String()))
}

func writeOptionalUint64(sb *strings.Builder, prefix string, v *uint64) {
	if v != nil {
		sb.WriteString(prefix + strconv.FormatUint(*v, 10))
	}
}
