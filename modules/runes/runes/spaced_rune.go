package runes

import (
	"math/bits"
	"strings"

	"github.com/cockroachdb/errors"
)

// SpacedRune is a rune name together with the bitmap of spacers rendered between its letters.
type SpacedRune struct {
	Rune    Rune
	Spacers uint32
}

func NewSpacedRune(rune Rune, spacers uint32) SpacedRune {
	return SpacedRune{
		Rune:    rune,
		Spacers: spacers,
	}
}

var (
	ErrLeadingSpacer              = errors.New("runes cannot start with a spacer")
	ErrTrailingSpacer             = errors.New("runes cannot end with a spacer")
	ErrDoubleSpacer               = errors.New("runes cannot have more than one spacer between characters")
	ErrInvalidSpacedRuneCharacter = errors.New("invalid spaced rune character: must satisfy regex [A-Z•.]")
)

// NewSpacedRuneFromString parses names like "UNCOMMON•GOODS". Both '•' and '.' are accepted as spacers.
func NewSpacedRuneFromString(input string) (SpacedRune, error) {
	var (
		name    strings.Builder
		spacers uint32
	)
	for _, c := range input {
		switch {
		case c >= 'A' && c <= 'Z':
			name.WriteRune(c)
		case c == '•' || c == '.':
			if name.Len() == 0 {
				return SpacedRune{}, errors.WithStack(ErrLeadingSpacer)
			}
			flag := uint32(1) << (name.Len() - 1)
			if spacers&flag != 0 {
				return SpacedRune{}, errors.WithStack(ErrDoubleSpacer)
			}
			spacers |= flag
		default:
			return SpacedRune{}, errors.WithStack(ErrInvalidSpacedRuneCharacter)
		}
	}

	if 32-bits.LeadingZeros32(spacers) >= name.Len() {
		return SpacedRune{}, errors.WithStack(ErrTrailingSpacer)
	}
	rune, err := NewRuneFromString(name.String())
	if err != nil {
		return SpacedRune{}, errors.Wrap(err, "failed to parse rune from string")
	}
	return NewSpacedRune(rune, spacers), nil
}

func (r SpacedRune) String() string {
	name := r.Rune.String()
	var sb strings.Builder
	for i, c := range name {
		sb.WriteRune(c)
		if i < len(name)-1 && r.Spacers&(1<<i) != 0 {
			sb.WriteRune('•')
		}
	}
	return sb.String()
}
