package common

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func P2TRScript(taprootKey *secp256k1.PublicKey) ([]byte, error) {
	key := schnorr.SerializePubKey(taprootKey)
	return txscript.NewScriptBuilder().AddOp(txscript.OP_1).AddData(key).Script()
}

func IsP2TRScript(script []byte) bool {
	return len(script) == 32+1+1 && script[0] == txscript.OP_1 && script[1] == 0x20
}

// AggregateOperatorKeys computes the N-of-N MuSig2 aggregated key over the
// given operator pubkeys (key-aggregation step only, keys sorted per BIP-327).
func AggregateOperatorKeys(pubkeys []*btcec.PublicKey) (*btcec.PublicKey, error) {
	if len(pubkeys) == 0 {
		return nil, fmt.Errorf("missing operator pubkeys")
	}

	aggKey, _, _, err := musig2.AggregateKeys(pubkeys, true)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate operator keys: %s", err)
	}
	return aggKey.FinalKey, nil
}
