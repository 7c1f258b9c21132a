package payflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

// ---------------------------------------------------------------
//  Node Connection
// ---------------------------------------------------------------

// ChainClient is the node-level RPC surface used by a run.
// *rpcclient.Client satisfies it.
type ChainClient interface {
	GetBlockCount() (int64, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
	CreateWallet(name string, opts ...rpcclient.CreateWalletOpt) (*btcjson.CreateWalletResult, error)
	LoadWallet(walletName string) (*btcjson.LoadWalletResult, error)
	GenerateToAddress(numBlocks int64, address btcutil.Address, maxTries *int64) ([]*chainhash.Hash, error)
	GetMempoolEntry(txHash string) (*btcjson.GetMempoolEntryResult, error)
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
	GetBlockVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error)
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
	Shutdown()
}

// WalletClient is the RPC surface of a single wallet endpoint.
// *rpcclient.Client satisfies it.
type WalletClient interface {
	GetBalance(account string) (btcutil.Amount, error)
	SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error)
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
	Shutdown()
}

// WalletDialer opens a client scoped to the named wallet.
type WalletDialer func(name string) (WalletClient, error)

// ConnConfig describes how to reach a node.
type ConnConfig struct {
	// Host is host:port of the node's RPC server, without scheme.
	Host string
	User string
	Pass string
	// Network is a chaincfg network name such as "regtest".
	Network string
}

// Node is a connection to a single Bitcoin Core node and the wallet
// clients opened through it.
type Node struct {
	chain   ChainClient
	dial    WalletDialer
	params  *chaincfg.Params
	wallets map[string]WalletClient
}

// NetParams resolves a network name to its chain parameters. Bitcoin Core
// names testnet3 "test", so that alias is accepted as well.
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case chaincfg.MainNetParams.Name, "main":
		return &chaincfg.MainNetParams, nil
	case chaincfg.TestNet3Params.Name, "test":
		return &chaincfg.TestNet3Params, nil
	case chaincfg.RegressionNetParams.Name:
		return &chaincfg.RegressionNetParams, nil
	case chaincfg.SigNetParams.Name:
		return &chaincfg.SigNetParams, nil
	case chaincfg.SimNetParams.Name:
		return &chaincfg.SimNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", network)
}

// rpcConnConfig builds the rpcclient configuration for host. Bitcoin Core
// only speaks HTTP POST, and regtest nodes run without TLS.
func rpcConnConfig(cfg ConnConfig, params *chaincfg.Params, host string) *rpcclient.ConnConfig {
	return &rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		Params:       params.Name,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
}

// walletHost suffixes the node endpoint with the wallet's RPC namespace.
func walletHost(host, wallet string) string {
	return strings.TrimRight(host, "/") + "/wallet/" + wallet
}

// Dial opens a connection to the node described by cfg and checks that it
// answers with the configured credentials.
//
// Returns ErrConnection if the node is unreachable or rejects the
// credentials, and ErrRPC if it answers with an error payload.
func Dial(cfg ConnConfig) (*Node, error) {
	params, err := NetParams(cfg.Network)
	if err != nil {
		return nil, err
	}

	client, err := rpcclient.New(rpcConnConfig(cfg, params, cfg.Host), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	dial := func(name string) (WalletClient, error) {
		c, err := rpcclient.New(rpcConnConfig(cfg, params, walletHost(cfg.Host, name)), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: wallet %s: %w", ErrConnection, name, err)
		}
		return c, nil
	}

	node := NewNode(client, dial, params)
	if err := node.HealthCheck(); err != nil {
		node.Shutdown()
		return nil, err
	}
	return node, nil
}

// NewNode assembles a Node from an existing chain client and wallet dialer.
func NewNode(chain ChainClient, dial WalletDialer, params *chaincfg.Params) *Node {
	return &Node{
		chain:   chain,
		dial:    dial,
		params:  params,
		wallets: make(map[string]WalletClient),
	}
}

// Params returns the chain parameters of the configured network.
func (n *Node) Params() *chaincfg.Params {
	return n.params
}

// Client returns the node-level client for calls not wrapped here.
func (n *Node) Client() ChainClient {
	return n.chain
}

// HealthCheck issues getblockcount to confirm the node answers.
func (n *Node) HealthCheck() error {
	_, err := n.chain.GetBlockCount()
	return classify("health check", err)
}

// BlockChainInfo returns the node's chain-state summary.
func (n *Node) BlockChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	info, err := n.chain.GetBlockChainInfo()
	if err != nil {
		return nil, classify("getblockchaininfo", err)
	}
	return info, nil
}

// EnsureWallet makes sure the named wallet exists and is loaded.
//
// Creation is attempted first. A wallet already on disk is loaded, and a
// wallet that is already loaded is accepted as is. Any other failure is
// returned.
func (n *Node) EnsureWallet(name string) error {
	_, err := n.chain.CreateWallet(name)
	switch {
	case err == nil, isWalletLoaded(err):
		return nil
	case !isWalletExists(err):
		return classify("createwallet "+name, err)
	}

	_, err = n.chain.LoadWallet(name)
	if err == nil || isWalletLoaded(err) {
		return nil
	}
	return classify("loadwallet "+name, err)
}

// Wallet returns the client scoped to the named wallet, opening it on
// first use.
func (n *Node) Wallet(name string) (WalletClient, error) {
	if w, ok := n.wallets[name]; ok {
		return w, nil
	}
	w, err := n.dial(name)
	if err != nil {
		return nil, err
	}
	n.wallets[name] = w
	return w, nil
}

// NewAddress generates a labelled receiving address in the named wallet and
// checks it belongs to the node's network.
func (n *Node) NewAddress(wallet, label string) (btcutil.Address, error) {
	w, err := n.Wallet(wallet)
	if err != nil {
		return nil, err
	}
	// The typed GetNewAddress decodes against the client's own params and
	// reports a foreign address as a plain decode error, so the raw string
	// is fetched and checked here.
	params, err := marshalParams(label)
	if err != nil {
		return nil, err
	}
	raw, err := w.RawRequest("getnewaddress", params)
	if err != nil {
		return nil, classify("getnewaddress "+wallet, err)
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("decode getnewaddress result: %w", err)
	}
	return RequireNetwork(encoded, n.params)
}

// RequireNetwork decodes addr and fails with ErrAddressNetworkMismatch unless
// it is valid on params.
func RequireNetwork(addr string, params *chaincfg.Params) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrAddressNetworkMismatch, addr, params.Name, err)
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("%w: %s is not a %s address", ErrAddressNetworkMismatch, addr, params.Name)
	}
	return decoded, nil
}

// Warp mines blocks to addr and returns their hashes.
func (n *Node) Warp(blocks int64, addr btcutil.Address) ([]*chainhash.Hash, error) {
	hashes, err := n.chain.GenerateToAddress(blocks, addr, nil)
	if err != nil {
		return nil, classify("generatetoaddress", err)
	}
	return hashes, nil
}

// Balance returns the named wallet's total balance.
func (n *Node) Balance(wallet string) (btcutil.Amount, error) {
	w, err := n.Wallet(wallet)
	if err != nil {
		return 0, err
	}
	// Bitcoin Core only accepts the "*" dummy for the account argument.
	bal, err := w.GetBalance("*")
	if err != nil {
		return 0, classify("getbalance "+wallet, err)
	}
	return bal, nil
}

// SendToAddress pays amount from the named wallet using sendtoaddress.
func (n *Node) SendToAddress(wallet string, addr btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	w, err := n.Wallet(wallet)
	if err != nil {
		return nil, err
	}
	txid, err := w.SendToAddress(addr, amount)
	if err != nil {
		return nil, classify("sendtoaddress "+wallet, err)
	}
	return txid, nil
}

// MempoolEntry looks up txid in the node's mempool.
func (n *Node) MempoolEntry(txid *chainhash.Hash) (*btcjson.GetMempoolEntryResult, error) {
	entry, err := n.chain.GetMempoolEntry(txid.String())
	if err != nil {
		return nil, classify("getmempoolentry", err)
	}
	return entry, nil
}

// InMempool reports whether txid is currently in the mempool.
func (n *Node) InMempool(txid *chainhash.Hash) (bool, error) {
	_, err := n.chain.GetMempoolEntry(txid.String())
	switch {
	case err == nil:
		return true, nil
	case isNotInMempool(err):
		return false, nil
	}
	return false, classify("getmempoolentry", err)
}

// Transaction fetches the verbose form of txid. When blockHash is set the
// lookup is scoped to that block, which works on nodes without -txindex.
func (n *Node) Transaction(txid, blockHash *chainhash.Hash) (*btcjson.TxRawResult, error) {
	if blockHash == nil {
		tx, err := n.chain.GetRawTransactionVerbose(txid)
		if err != nil {
			return nil, classify("getrawtransaction "+txid.String(), err)
		}
		return tx, nil
	}

	// rpcclient has no variant taking a block hash.
	params, err := marshalParams(txid.String(), true, blockHash.String())
	if err != nil {
		return nil, err
	}
	raw, err := n.chain.RawRequest("getrawtransaction", params)
	if err != nil {
		return nil, classify("getrawtransaction "+txid.String(), err)
	}
	var tx btcjson.TxRawResult
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode getrawtransaction result: %w", err)
	}
	return &tx, nil
}

// Block fetches the verbose header data of the block with the given hash.
func (n *Node) Block(hash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error) {
	block, err := n.chain.GetBlockVerbose(hash)
	if err != nil {
		return nil, classify("getblock "+hash.String(), err)
	}
	return block, nil
}

// Shutdown closes every client opened through the node.
func (n *Node) Shutdown() {
	for name, w := range n.wallets {
		w.Shutdown()
		delete(n.wallets, name)
	}
	n.chain.Shutdown()
}
