package btcutils

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPkScriptToAddress(t *testing.T) {
	network := common.NetworkRegtest
	witnessAddr, err := btcutil.NewAddressWitnessPubKeyHash(bytes.Repeat([]byte{0x01}, 20), network.ChainParams())
	require.NoError(t, err)
	taprootAddr, err := btcutil.NewAddressTaproot(bytes.Repeat([]byte{0x02}, 32), network.ChainParams())
	require.NoError(t, err)

	for _, addr := range []btcutil.Address{witnessAddr, taprootAddr} {
		pkScript, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)
		actual, err := PkScriptToAddress(pkScript, network)
		require.NoError(t, err)
		assert.Equal(t, addr.EncodeAddress(), actual)
	}

	t.Run("op_return", func(t *testing.T) {
		_, err := PkScriptToAddress([]byte{txscript.OP_RETURN, txscript.OP_13}, network)
		assert.ErrorIs(t, err, errs.NotFound)
	})
	t.Run("non standard", func(t *testing.T) {
		_, err := PkScriptToAddress([]byte{txscript.OP_TRUE}, network)
		assert.ErrorIs(t, err, errs.NotFound)
	})
}
