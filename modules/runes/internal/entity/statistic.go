package entity

// Statistic is a named counter kept alongside the ledger.
type Statistic uint8

const (
	// StatisticRunes counts etched runes. Its value before an etching is the new rune's number.
	StatisticRunes Statistic = iota
	// StatisticReservedRunes counts unnamed etchings, each receiving a reserved name.
	StatisticReservedRunes
)

func (s Statistic) String() string {
	switch s {
	case StatisticRunes:
		return "runes"
	case StatisticReservedRunes:
		return "reserved_runes"
	}
	return "unknown"
}
