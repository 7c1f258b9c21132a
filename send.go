package payflow

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ---------------------------------------------------------------
//  Manual RPC Schemas
// ---------------------------------------------------------------
//
// rpcclient has no typed wrapper for Bitcoin Core's "send" RPC, so its
// request and response are declared here and issued through RawRequest.

// SendRequest holds the positional arguments of the "send" RPC. Nil fields
// are sent as null and left to the node's defaults.
type SendRequest struct {
	// Outputs maps each destination address to its amount.
	Outputs map[string]btcutil.Amount

	ConfTarget   *int64
	EstimateMode *string
	// FeeRate is in sat/vB.
	FeeRate *float64
	Options map[string]any
}

// SendResult is the subset of the "send" response we consume.
type SendResult struct {
	Complete bool   `json:"complete"`
	TxID     string `json:"txid"`
	Hex      string `json:"hex,omitempty"`
}

// Params encodes the request as RawRequest parameters.
func (r SendRequest) Params() ([]json.RawMessage, error) {
	// Amounts travel as BTC decimals, one single-key object per output in
	// address order.
	outputs := make([]map[string]float64, 0, len(r.Outputs))
	for _, addr := range slices.Sorted(maps.Keys(r.Outputs)) {
		outputs = append(outputs, map[string]float64{addr: r.Outputs[addr].ToBTC()})
	}

	var options any
	if r.Options != nil {
		options = r.Options
	}
	return marshalParams(outputs, r.ConfTarget, r.EstimateMode, r.FeeRate, options)
}

// Send issues the "send" RPC from the named wallet. The result must be
// complete, otherwise ErrSendIncomplete is returned.
func (n *Node) Send(wallet string, req SendRequest) (*chainhash.Hash, error) {
	w, err := n.Wallet(wallet)
	if err != nil {
		return nil, err
	}

	params, err := req.Params()
	if err != nil {
		return nil, err
	}
	raw, err := w.RawRequest("send", params)
	if err != nil {
		return nil, classify("send "+wallet, err)
	}

	var res SendResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode send result: %w", err)
	}
	if !res.Complete {
		return nil, fmt.Errorf("%w: wallet %s", ErrSendIncomplete, wallet)
	}

	txid, err := chainhash.NewHashFromStr(res.TxID)
	if err != nil {
		return nil, fmt.Errorf("decode send txid %q: %w", res.TxID, err)
	}
	return txid, nil
}

// marshalParams JSON-encodes each positional RPC argument.
func marshalParams(args ...any) ([]json.RawMessage, error) {
	params := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode rpc param %d: %w", i, err)
		}
		params = append(params, b)
	}
	return params, nil
}
