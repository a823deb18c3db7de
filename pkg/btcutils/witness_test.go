package btcutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTapscript(t *testing.T) {
	script := []byte{0x01, 0x02}
	control := []byte{0xc0}
	annex := []byte{0x50, 0xaa}

	testCases := []struct {
		name     string
		witness  [][]byte
		expected []byte
		ok       bool
	}{
		{name: "key path", witness: [][]byte{{0x01}}, ok: false},
		{name: "empty", witness: nil, ok: false},
		{name: "script path", witness: [][]byte{{0x09}, script, control}, expected: script, ok: true},
		{name: "script path with annex", witness: [][]byte{{0x09}, script, control, annex}, expected: script, ok: true},
		{name: "key path with annex", witness: [][]byte{{0x01}, annex}, ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, ok := Tapscript(tc.witness)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, actual)
		})
	}
}
