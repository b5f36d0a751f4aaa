// Package txvalidate parses and validates the backup and withdraw
// transactions named in SPEC_FULL.md §4.2/§4.5's prepare_sign steps:
// "verify the backup transaction spends the funding outpoint to an
// owner-controlled P2WPKH" and "validate the withdraw tx pays
// fee_address at least fee_withdraw and the remainder to addr". Full
// node/broadcast concerns (fee-rate oracle, mempool, on-chain
// scheduling) stay out of scope per spec.md §1's Non-goals; parsing
// and output-amount validation of a client-supplied transaction is the
// protocol-level concern this package covers.
package txvalidate

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/sceerr"
)

// Params maps the entity's configured Network onto the matching
// chaincfg.Params for address decoding.
func Params(network config.Network) (*chaincfg.Params, error) {
	switch network {
	case config.NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case config.NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case config.NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("txvalidate: unknown network %q", network)
	}
}

// Parse deserializes a raw transaction as submitted over prepare-sign.
func Parse(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, sceerr.Protocol(fmt.Sprintf("cannot parse transaction: %v", err))
	}
	return tx, nil
}

// outputTo returns the value of the first output paying addr under
// params, or ok=false if tx has no such output.
func outputTo(tx *wire.MsgTx, params *chaincfg.Params, addr string) (value int64, ok bool, err error) {
	target, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return 0, false, sceerr.Protocol(fmt.Sprintf("cannot decode address %q: %v", addr, err))
	}
	wantScript, err := txscript.PayToAddrScript(target)
	if err != nil {
		return 0, false, fmt.Errorf("build output script for %q: %w", addr, err)
	}
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, wantScript) {
			return out.Value, true, nil
		}
	}
	return 0, false, nil
}

// RequireBackupOutput validates §4.2's backup-tx check: the backup
// transaction's sole spend of the funding outpoint must pay
// ownerAddr (the owner-controlled P2WPKH derived from the aggregate
// key Q) at least minAmount.
func RequireBackupOutput(tx *wire.MsgTx, params *chaincfg.Params, ownerAddr string, minAmount int64) error {
	value, ok, err := outputTo(tx, params, ownerAddr)
	if err != nil {
		return err
	}
	if !ok {
		return sceerr.Protocol(fmt.Sprintf("backup transaction has no output paying %s", ownerAddr))
	}
	if value < minAmount {
		return sceerr.Protocol(fmt.Sprintf("backup transaction output %d is below the funded amount %d", value, minAmount))
	}
	return nil
}

// RequireWithdrawOutputs validates §4.5's prepare_sign_withdraw check:
// the withdraw transaction must pay feeAddr at least minFee, and the
// remainder (amount - fee) to addr.
func RequireWithdrawOutputs(tx *wire.MsgTx, params *chaincfg.Params, feeAddr string, minFee int64, addr string, amount int64) error {
	feeValue, ok, err := outputTo(tx, params, feeAddr)
	if err != nil {
		return err
	}
	if !ok {
		return sceerr.Protocol(fmt.Sprintf("withdraw transaction has no output paying fee address %s", feeAddr))
	}
	if feeValue < minFee {
		return sceerr.Protocol(fmt.Sprintf("withdraw transaction fee output %d is below fee_withdraw %d", feeValue, minFee))
	}

	remainderValue, ok, err := outputTo(tx, params, addr)
	if err != nil {
		return err
	}
	if !ok {
		return sceerr.Protocol(fmt.Sprintf("withdraw transaction has no output paying withdraw address %s", addr))
	}
	if want := amount - feeValue; remainderValue < want {
		return sceerr.Protocol(fmt.Sprintf("withdraw transaction remainder %d is below expected %d", remainderValue, want))
	}
	return nil
}

// SigHash computes the digest the co-signing engine signs over. A full
// SIGHASH_ALL computation needs the spent output's pkScript, which
// this entity only has for the single input it co-signs (the funding
// UTXO locked to the aggregate key Q); CalcWitnessSigHash over that
// input covers exactly the P2WPKH spend path §4.1/§4.2 describe.
func SigHash(tx *wire.MsgTx, prevOutScript []byte, prevOutValue int64, inputIndex int) ([]byte, error) {
	sigHashes := txscript.NewTxSigHashes(tx, txscript.NewCannedPrevOutputFetcher(prevOutScript, prevOutValue))
	return txscript.CalcWitnessSigHash(prevOutScript, sigHashes, txscript.SigHashAll, tx, inputIndex, prevOutValue)
}
