package payflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
)

// ---------------------------------------------------------------
//  Error Taxonomy
// ---------------------------------------------------------------

var (
	// ErrConnection reports that the node could not be reached or rejected
	// the configured credentials.
	ErrConnection = errors.New("node connection failed")

	// ErrRPC reports a node-side failure returned as a JSON-RPC error payload.
	// The underlying *btcjson.RPCError stays in the chain for errors.As.
	ErrRPC = errors.New("node rpc error")

	// ErrAddressNetworkMismatch reports an address that does not belong to
	// the expected network.
	ErrAddressNetworkMismatch = errors.New("address network mismatch")

	// ErrNetworkMismatch reports a node whose chain differs from the
	// configured network.
	ErrNetworkMismatch = errors.New("node chain does not match configured network")

	// ErrSendIncomplete reports a send call whose result was not marked complete.
	ErrSendIncomplete = errors.New("send did not complete")

	ErrNoSpendableBalance = errors.New("wallet has no spendable balance")
	ErrStillInMempool     = errors.New("transaction still in mempool after confirmation")
	ErrCoinbaseInput      = errors.New("input has no previous output to resolve")
	ErrPrevOutMissing     = errors.New("previous output index out of range")
	ErrRecipientOutput    = errors.New("transaction must pay the recipient exactly once")
	ErrNegativeFee        = errors.New("outputs exceed inputs")
)

// Bitcoin Core reports these codes for wallet and mempool conditions we
// treat as expected outcomes rather than failures.
const (
	rpcCodeWalletError         = btcjson.RPCErrorCode(-4)
	rpcCodeInvalidAddressOrKey = btcjson.RPCErrorCode(-5)
	rpcCodeWalletAlreadyLoaded = btcjson.RPCErrorCode(-35)
)

// classify wraps err with ErrRPC when the node answered with an error
// payload and with ErrConnection otherwise.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := asRPCError(err); ok {
		return fmt.Errorf("%s: %w: %w", op, ErrRPC, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}

// asRPCError returns the node error payload carried by err, if any.
func asRPCError(err error) (*btcjson.RPCError, bool) {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// isWalletExists reports whether createwallet failed only because the
// wallet's database is already on disk.
func isWalletExists(err error) bool {
	rpcErr, ok := asRPCError(err)
	if !ok {
		return false
	}
	return rpcErr.Code == rpcCodeWalletError &&
		strings.Contains(strings.ToLower(rpcErr.Message), "already exists")
}

// isWalletLoaded reports whether a create or load call failed only because
// the wallet is already loaded. Nodes before v22 use the generic wallet code.
func isWalletLoaded(err error) bool {
	rpcErr, ok := asRPCError(err)
	if !ok {
		return false
	}
	if rpcErr.Code == rpcCodeWalletAlreadyLoaded {
		return true
	}
	return rpcErr.Code == rpcCodeWalletError &&
		strings.Contains(strings.ToLower(rpcErr.Message), "already loaded")
}

// isNotInMempool reports whether getmempoolentry failed because the
// transaction is not (or no longer) in the mempool.
func isNotInMempool(err error) bool {
	rpcErr, ok := asRPCError(err)
	return ok && rpcErr.Code == rpcCodeInvalidAddressOrKey
}
