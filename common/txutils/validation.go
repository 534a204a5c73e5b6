package txutils

import (
	"bytes"
	"fmt"

	"github.com/alpenlabs/bridged/common"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	schnorrSigLen             = 64
	schnorrSigWithHashTypeLen = 65
)

// DepositOutputScript returns the only script a deposit output may carry:
// a P2TR locked to the federation's aggregated key tweaked with an empty
// merkle root (key-path only, no script path).
func DepositOutputScript(aggKey *btcec.PublicKey) ([]byte, error) {
	taprootKey := txscript.ComputeTaprootOutputKey(aggKey, nil)
	return common.P2TRScript(taprootKey)
}

// ValidateDepositOutput checks that the deposit output of tx is exactly a
// key-path-only P2TR under the federation's current aggregated key and that it
// carries the claimed amount. Any deviation rejects the transaction.
func ValidateDepositOutput(
	tx *wire.MsgTx, depositVout uint32, amount uint64, aggKey *btcec.PublicKey,
) error {
	if int(depositVout) >= len(tx.TxOut) {
		return fmt.Errorf(
			"missing deposit output: tx has %d outputs, expected output %d",
			len(tx.TxOut), depositVout,
		)
	}
	out := tx.TxOut[depositVout]

	if out.Value != int64(amount) {
		return fmt.Errorf(
			"invalid deposit output amount: expected %d, got %d", amount, out.Value,
		)
	}

	expectedScript, err := DepositOutputScript(aggKey)
	if err != nil {
		return err
	}
	if !common.IsP2TRScript(out.PkScript) || !bytes.Equal(out.PkScript, expectedScript) {
		return fmt.Errorf(
			"invalid deposit output script: expected %x, got %x", expectedScript, out.PkScript,
		)
	}

	return nil
}

// ValidateDepositSpend checks the spend authorization of the transaction
// spending a deposit-request output. The expected prevout is reconstructed by
// tweaking the aggregated key with the request's tapscript merkle root, the
// BIP-341 key-path sighash is computed against it and the Schnorr signature
// found in the first input's witness is verified against the tweaked key.
func ValidateDepositSpend(
	tx *wire.MsgTx, amount uint64, takebackRoot [32]byte, aggKey *btcec.PublicKey,
) error {
	if len(tx.TxIn) == 0 {
		return fmt.Errorf("transaction has no inputs")
	}

	witness := tx.TxIn[0].Witness
	if len(witness) == 0 {
		return fmt.Errorf("empty witness on first input")
	}

	rawSig := witness[0]
	hashType := txscript.SigHashDefault
	switch len(rawSig) {
	case schnorrSigLen:
	case schnorrSigWithHashTypeLen:
		hashType = txscript.SigHashType(rawSig[schnorrSigLen])
		if hashType == txscript.SigHashDefault {
			return fmt.Errorf("invalid sighash type byte: 0x00")
		}
		rawSig = rawSig[:schnorrSigLen]
	default:
		return fmt.Errorf("invalid schnorr signature length: %d", len(rawSig))
	}

	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return fmt.Errorf("failed to parse schnorr signature: %s", err)
	}

	taprootKey := txscript.ComputeTaprootOutputKey(aggKey, takebackRoot[:])
	prevoutScript, err := common.P2TRScript(taprootKey)
	if err != nil {
		return err
	}

	prevoutFetcher := txscript.NewCannedPrevOutputFetcher(prevoutScript, int64(amount))
	txSigHashes := txscript.NewTxSigHashes(tx, prevoutFetcher)

	sighash, err := txscript.CalcTaprootSignatureHash(
		txSigHashes, hashType, tx, 0, prevoutFetcher,
	)
	if err != nil {
		return fmt.Errorf("failed to compute taproot sighash: %s", err)
	}

	if !sig.Verify(sighash, taprootKey) {
		return fmt.Errorf(
			"invalid signature for input %s", tx.TxIn[0].PreviousOutPoint.String(),
		)
	}

	return nil
}
