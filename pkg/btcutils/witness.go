package btcutils

import (
	"github.com/btcsuite/btcd/txscript"
)

// RemoveAnnex drops the taproot annex, the last element when it starts with 0x50 and the stack has at least two elements.
func RemoveAnnex(witness [][]byte) [][]byte {
	if len(witness) >= 2 && len(witness[len(witness)-1]) > 0 && witness[len(witness)-1][0] == txscript.TaprootAnnexTag {
		return witness[:len(witness)-1]
	}
	return witness
}

// Tapscript returns the script of a taproot script-path spend: the element before the control block.
// The witness is not validated, the input may not even spend a taproot output.
func Tapscript(witness [][]byte) ([]byte, bool) {
	witness = RemoveAnnex(witness)
	if len(witness) < 2 {
		return nil, false
	}
	return witness[len(witness)-2], true
}
