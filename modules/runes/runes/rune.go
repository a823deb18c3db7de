package runes

import (
	"encoding/binary"
	"slices"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/uint128"
)

// Rune is the numeric value of a rune name, written in modified base-26 (A=0, Z=25, AA=26).
type Rune uint128.Uint128

func NewRune(value uint64) Rune {
	return Rune(uint128.From64(value))
}

func NewRuneFromUint128(value uint128.Uint128) Rune {
	return Rune(value)
}

var ErrInvalidBase26 = errs.ErrorKind("invalid base-26 character: must be in the range [A-Z]")

// NewRuneFromString parses a rune name in modified base-26. Spacers are not accepted, see NewSpacedRuneFromString.
func NewRuneFromString(value string) (Rune, error) {
	n := uint128.Zero
	var overflow bool
	for i, char := range value {
		if char < 'A' || char > 'Z' {
			return Rune{}, errors.WithStack(ErrInvalidBase26)
		}
		if i > 0 {
			n, overflow = n.AddOverflow(uint128.From64(1))
			if overflow {
				return Rune{}, errors.WithStack(errs.OverflowUint128)
			}
		}
		n, overflow = n.MulOverflow(uint128.From64(26))
		if overflow {
			return Rune{}, errors.WithStack(errs.OverflowUint128)
		}
		n, overflow = n.AddOverflow(uint128.From64(uint64(char - 'A')))
		if overflow {
			return Rune{}, errors.WithStack(errs.OverflowUint128)
		}
	}
	return Rune(n), nil
}

func (r Rune) Uint128() uint128.Uint128 {
	return uint128.Uint128(r)
}

func (r Rune) Cmp(other Rune) int {
	return r.Uint128().Cmp(other.Uint128())
}

// String returns the modified base-26 name of the rune.
func (r Rune) String() string {
	if r.Uint128().Equals(uint128.Max) {
		return "BCGDENLQRQWDSLRUGSNLBTMFIJAV"
	}
	n := r.Uint128().Add64(1)
	var encoded []byte
	for !n.IsZero() {
		q, rem := n.Sub64(1).QuoRem64(26)
		encoded = append(encoded, byte('A'+rem))
		n = q
	}
	slices.Reverse(encoded)
	return string(encoded)
}

// Commitment returns the little-endian bytes of the rune without trailing zeroes.
// An etching of a named rune must reveal these bytes in a taproot script.
func (r Rune) Commitment() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[:8], r.Uint128().Lo)
	binary.LittleEndian.PutUint64(buf[8:], r.Uint128().Hi)
	end := len(buf)
	for end > 0 && buf[end-1] == 0 {
		end--
	}
	return buf[:end]
}

var firstReservedRune = Rune(utils.Must(uint128.FromString("6402364363415443603228541259936211926")))

// IsReserved reports whether the rune is in the range assigned to etchings without a name.
func (r Rune) IsReserved() bool {
	return r.Cmp(firstReservedRune) >= 0
}

// GetReservedRune returns the name assigned to an unnamed etching at the given location.
func GetReservedRune(blockHeight uint64, txIndex uint32) Rune {
	offset := uint128.From64(blockHeight).Lsh(32).Or(uint128.From64(uint64(txIndex)))
	return Rune(firstReservedRune.Uint128().Add(offset))
}

// unlockSteps[n] is the smallest rune with n+1 letters.
var unlockSteps = []uint128.Uint128{
	utils.Must(uint128.FromString("0")),                                       // A
	utils.Must(uint128.FromString("26")),                                      // AA
	utils.Must(uint128.FromString("702")),                                     // AAA
	utils.Must(uint128.FromString("18278")),                                   // AAAA
	utils.Must(uint128.FromString("475254")),                                  // AAAAA
	utils.Must(uint128.FromString("12356630")),                                // AAAAAA
	utils.Must(uint128.FromString("321272406")),                               // AAAAAAA
	utils.Must(uint128.FromString("8353082582")),                              // AAAAAAAA
	utils.Must(uint128.FromString("217180147158")),                            // AAAAAAAAA
	utils.Must(uint128.FromString("5646683826134")),                           // AAAAAAAAAA
	utils.Must(uint128.FromString("146813779479510")),                         // AAAAAAAAAAA
	utils.Must(uint128.FromString("3817158266467286")),                        // AAAAAAAAAAAA
	utils.Must(uint128.FromString("99246114928149462")),                       // AAAAAAAAAAAAA
	utils.Must(uint128.FromString("2580398988131886038")),                     // AAAAAAAAAAAAAA
	utils.Must(uint128.FromString("67090373691429037014")),                    // AAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("1744349715977154962390")),                  // AAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("45353092615406029022166")),                 // AAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("1179180408000556754576342")),               // AAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("30658690608014475618984918")),              // AAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("797125955808376366093607894")),             // AAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("20725274851017785518433805270")),           // AAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("538857146126462423479278937046")),          // AAAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("14010285799288023010461252363222")),        // AAAAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("364267430781488598271992561443798")),       // AAAAAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("9470953200318703555071806597538774")),      // AAAAAAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("246244783208286292431866971536008150")),    // AAAAAAAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("6402364363415443603228541259936211926")),   // AAAAAAAAAAAAAAAAAAAAAAAAAAA
	utils.Must(uint128.FromString("166461473448801533683942072758341510102")), // AAAAAAAAAAAAAAAAAAAAAAAAAAAA
}

// FirstRuneHeight returns the activation height of runes on the network.
func FirstRuneHeight(network common.Network) uint64 {
	switch network {
	case common.NetworkMainnet:
		return common.HalvingInterval * 4
	case common.NetworkTestnet:
		return common.HalvingInterval * 12
	}
	return 0
}

// MinimumRuneAtHeight returns the smallest name that may be etched at the given height.
// Names unlock gradually, one letter every HalvingInterval/12 blocks after activation.
func MinimumRuneAtHeight(network common.Network, height uint64) Rune {
	const interval = common.HalvingInterval / 12

	offset := height + 1
	start := FirstRuneHeight(network)
	end := start + common.HalvingInterval

	if offset < start {
		return Rune(unlockSteps[12])
	}
	if offset >= end {
		return Rune(unlockSteps[0])
	}

	progress := offset - start
	length := 12 - progress/interval
	upper, lower := unlockSteps[length], unlockSteps[length-1]
	remainder := progress % interval

	delta, _ := upper.Sub(lower).Mul64(remainder).QuoRem64(interval)
	return Rune(upper.Sub(delta))
}

// MarshalJSON implements json.Marshaler
func (r Rune) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Rune) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.Wrap(errs.InvalidArgument, "rune must be a string")
	}
	parsed, err := NewRuneFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return errors.WithStack(err)
	}
	*r = parsed
	return nil
}
