package runes

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
)

// RuneId is the location of the etching transaction of a rune.
type RuneId struct {
	BlockHeight uint64
	TxIndex     uint32
}

var ErrRuneIdZeroBlockNonZeroTxIndex = errors.New("rune id cannot be zero block height and non-zero tx index")

func NewRuneId(blockHeight uint64, txIndex uint32) (RuneId, error) {
	if blockHeight == 0 && txIndex != 0 {
		return RuneId{}, errors.WithStack(ErrRuneIdZeroBlockNonZeroTxIndex)
	}
	return RuneId{
		BlockHeight: blockHeight,
		TxIndex:     txIndex,
	}, nil
}

var (
	ErrInvalidSeparator       = errors.New("invalid rune id: must contain exactly one separator")
	ErrCannotParseBlockHeight = errors.New("invalid rune id: cannot parse block height")
	ErrCannotParseTxIndex     = errors.New("invalid rune id: cannot parse tx index")
)

func NewRuneIdFromString(str string) (RuneId, error) {
	blockStr, txStr, ok := strings.Cut(str, ":")
	if !ok || strings.Contains(txStr, ":") {
		return RuneId{}, errors.WithStack(ErrInvalidSeparator)
	}
	blockHeight, err := strconv.ParseUint(blockStr, 10, 64)
	if err != nil {
		return RuneId{}, errors.Wrapf(ErrCannotParseBlockHeight, "%q: %v", blockStr, err)
	}
	txIndex, err := strconv.ParseUint(txStr, 10, 32)
	if err != nil {
		return RuneId{}, errors.Wrapf(ErrCannotParseTxIndex, "%q: %v", txStr, err)
	}
	return NewRuneId(blockHeight, uint32(txIndex))
}

// IsWildcard reports whether the id is 0:0, which edicts use to refer to the rune etched in the same transaction.
func (r RuneId) IsWildcard() bool {
	return r == RuneId{}
}

func (r RuneId) String() string {
	return fmt.Sprintf("%d:%d", r.BlockHeight, r.TxIndex)
}

// Cmp orders rune ids by block height, then by tx index.
func (r RuneId) Cmp(other RuneId) int {
	if c := cmp.Compare(r.BlockHeight, other.BlockHeight); c != 0 {
		return c
	}
	return cmp.Compare(r.TxIndex, other.TxIndex)
}

// Delta returns the delta encoding of next relative to r. Within the same block the tx index is
// relative, otherwise it is absolute.
func (r RuneId) Delta(next RuneId) (uint64, uint32) {
	blockDelta := next.BlockHeight - r.BlockHeight
	if blockDelta == 0 {
		return 0, next.TxIndex - r.TxIndex
	}
	return blockDelta, next.TxIndex
}

// Next applies a delta produced by Delta.
func (r RuneId) Next(blockDelta uint64, txIndexDelta uint32) (RuneId, error) {
	if blockDelta == 0 {
		if txIndexDelta > ^uint32(0)-r.TxIndex {
			return RuneId{}, errors.WithStack(errs.OverflowUint32)
		}
		return NewRuneId(r.BlockHeight, r.TxIndex+txIndexDelta)
	}
	if blockDelta > ^uint64(0)-r.BlockHeight {
		return RuneId{}, errors.WithStack(errs.OverflowUint64)
	}
	return NewRuneId(r.BlockHeight+blockDelta, txIndexDelta)
}

// MarshalJSON implements json.Marshaler
func (r RuneId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (r *RuneId) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.Wrap(errs.InvalidArgument, "rune id must be a string")
	}
	parsed, err := NewRuneIdFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return errors.WithStack(err)
	}
	*r = parsed
	return nil
}
