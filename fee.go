package payflow

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// ---------------------------------------------------------------
//  Fee Analysis
// ---------------------------------------------------------------

// Input is a transaction input resolved to the output it spends.
type Input struct {
	TxID    string
	Vout    uint32
	Address string
	Value   btcutil.Amount
}

// Output is a decoded transaction output. Address is empty for scripts
// that do not encode a single address, such as OP_RETURN.
type Output struct {
	Index   uint32
	Address string
	Value   btcutil.Amount
}

// Breakdown splits a payment transaction into what it spent, what it paid
// the recipient and what went elsewhere. All amounts are in satoshis.
type Breakdown struct {
	Inputs  []Input
	Payment Output
	// Change holds every addressed output that is not the payment.
	Change []Output
	// Other holds outputs without an address.
	Other []Output
	Fee   btcutil.Amount
}

// InputTotal sums the values of all inputs.
func (b *Breakdown) InputTotal() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range b.Inputs {
		total += in.Value
	}
	return total
}

// ChangeTotal sums the values of all change outputs.
func (b *Breakdown) ChangeTotal() btcutil.Amount {
	return sumOutputs(b.Change)
}

// TxLookup fetches a verbose transaction by id.
type TxLookup func(txid *chainhash.Hash) (*btcjson.TxRawResult, error)

// Analyze resolves tx's inputs through lookup, partitions its outputs
// around recipient and computes the fee.
func Analyze(tx *btcjson.TxRawResult, recipient string, lookup TxLookup, params *chaincfg.Params) (*Breakdown, error) {
	inputs, err := ResolveInputs(tx, lookup, params)
	if err != nil {
		return nil, err
	}
	outputs, err := DecodeOutputs(tx, params)
	if err != nil {
		return nil, err
	}
	payment, change, other, err := Partition(outputs, recipient)
	if err != nil {
		return nil, err
	}

	b := &Breakdown{
		Inputs:  inputs,
		Payment: payment,
		Change:  change,
		Other:   other,
	}
	fee, err := Fee(b.InputTotal(), outputs)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", tx.Txid, err)
	}
	b.Fee = fee
	return b, nil
}

// Fee returns inputs minus the sum of outputs. A negative result fails with
// ErrNegativeFee.
func Fee(inputs btcutil.Amount, outputs []Output) (btcutil.Amount, error) {
	fee := inputs - sumOutputs(outputs)
	if fee < 0 {
		return 0, fmt.Errorf("%w: inputs %v, outputs %v", ErrNegativeFee, inputs, sumOutputs(outputs))
	}
	return fee, nil
}

// ResolveInputs looks up the previous output spent by each of tx's inputs.
// An input carries only a reference, so its value and address come from
// the referenced transaction.
func ResolveInputs(tx *btcjson.TxRawResult, lookup TxLookup, params *chaincfg.Params) ([]Input, error) {
	inputs := make([]Input, 0, len(tx.Vin))
	for i, vin := range tx.Vin {
		if vin.Coinbase != "" || vin.Txid == "" {
			return nil, fmt.Errorf("%w: tx %s input %d", ErrCoinbaseInput, tx.Txid, i)
		}

		prevID, err := chainhash.NewHashFromStr(vin.Txid)
		if err != nil {
			return nil, fmt.Errorf("tx %s input %d: %w", tx.Txid, i, err)
		}
		prev, err := lookup(prevID)
		if err != nil {
			return nil, err
		}
		prevOuts, err := DecodeOutputs(prev, params)
		if err != nil {
			return nil, err
		}

		out, ok := findOutput(prevOuts, vin.Vout)
		if !ok {
			return nil, fmt.Errorf("%w: %s:%d", ErrPrevOutMissing, vin.Txid, vin.Vout)
		}
		inputs = append(inputs, Input{
			TxID:    vin.Txid,
			Vout:    vin.Vout,
			Address: out.Address,
			Value:   out.Value,
		})
	}
	return inputs, nil
}

// DecodeOutputs converts tx's outputs into satoshi values and addresses.
func DecodeOutputs(tx *btcjson.TxRawResult, params *chaincfg.Params) ([]Output, error) {
	outputs := make([]Output, 0, len(tx.Vout))
	for _, vout := range tx.Vout {
		value, err := btcutil.NewAmount(vout.Value)
		if err != nil {
			return nil, fmt.Errorf("tx %s output %d value: %w", tx.Txid, vout.N, err)
		}
		addr, err := scriptAddress(vout.ScriptPubKey.Hex, params)
		if err != nil {
			return nil, fmt.Errorf("tx %s output %d script: %w", tx.Txid, vout.N, err)
		}
		outputs = append(outputs, Output{Index: vout.N, Address: addr, Value: value})
	}
	return outputs, nil
}

// Partition separates the single output paying recipient from the rest.
// Zero or several matches fail with ErrRecipientOutput.
func Partition(outputs []Output, recipient string) (payment Output, change, other []Output, err error) {
	matches := 0
	for _, out := range outputs {
		switch {
		case out.Address == recipient:
			payment = out
			matches++
		case out.Address == "":
			other = append(other, out)
		default:
			change = append(change, out)
		}
	}
	if matches != 1 {
		return Output{}, nil, nil, fmt.Errorf("%w: %d outputs pay %s", ErrRecipientOutput, matches, recipient)
	}
	return payment, change, other, nil
}

// scriptAddress returns the address encoded by a hex output script, or ""
// when the script does not encode exactly one address.
func scriptAddress(scriptHex string, params *chaincfg.Params) (string, error) {
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		return "", err
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil || len(addrs) != 1 {
		return "", nil
	}
	return addrs[0].EncodeAddress(), nil
}

func findOutput(outputs []Output, index uint32) (Output, bool) {
	for _, out := range outputs {
		if out.Index == index {
			return out, true
		}
	}
	return Output{}, false
}

func sumOutputs(outputs []Output) btcutil.Amount {
	var total btcutil.Amount
	for _, out := range outputs {
		total += out.Value
	}
	return total
}
