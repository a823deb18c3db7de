package btcutils

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/common/errs"
)

// addressClasses are the script classes that encode to exactly one address.
var addressClasses = map[txscript.ScriptClass]struct{}{
	txscript.PubKeyHashTy:          {},
	txscript.ScriptHashTy:          {},
	txscript.WitnessV0PubKeyHashTy: {},
	txscript.WitnessV0ScriptHashTy: {},
	txscript.WitnessV1TaprootTy:    {},
}

// PkScriptToAddress returns the address of a standard output script.
// Returns errs.NotFound for scripts without an address, such as OP_RETURN, bare multisig or P2PK.
func PkScriptToAddress(pkScript []byte, network common.Network) (string, error) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, network.ChainParams())
	if err != nil {
		return "", errors.Wrap(errs.NotFound, "error extracting addresses from pkscript")
	}
	if _, ok := addressClasses[class]; !ok || len(addrs) != 1 {
		return "", errors.Wrapf(errs.NotFound, "%s script has no address", class)
	}
	return addrs[0].EncodeAddress(), nil
}
