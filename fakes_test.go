package payflow

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
)

// regtestAddr derives a deterministic P2WPKH address from seed.
func regtestAddr(t *testing.T, seed byte) btcutil.Address {
	t.Helper()
	return netAddr(t, seed, &chaincfg.RegressionNetParams)
}

func netAddr(t *testing.T, seed byte, params *chaincfg.Params) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(bytes.Repeat([]byte{seed}, 20), params)
	if err != nil {
		t.Fatalf("failed to derive address: %v", err)
	}
	return addr
}

// vout builds a verbose output paying btc to addr.
func vout(t *testing.T, n uint32, btc float64, addr btcutil.Address) btcjson.Vout {
	t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("failed to build script: %v", err)
	}
	return btcjson.Vout{
		Value:        btc,
		N:            n,
		ScriptPubKey: btcjson.ScriptPubKeyResult{Hex: hex.EncodeToString(script)},
	}
}

// nulldataVout builds an OP_RETURN output, which carries no address.
func nulldataVout(t *testing.T, n uint32) btcjson.Vout {
	t.Helper()
	script, err := txscript.NullDataScript([]byte("payflow"))
	if err != nil {
		t.Fatalf("failed to build null data script: %v", err)
	}
	return btcjson.Vout{N: n, ScriptPubKey: btcjson.ScriptPubKeyResult{Hex: hex.EncodeToString(script)}}
}

func hashOf(s string) *chainhash.Hash {
	h := chainhash.HashH([]byte(s))
	return &h
}

// fakeChain plays a node: it tracks wallets, a mempool and mined blocks.
type fakeChain struct {
	blockCountErr error
	info          *btcjson.GetBlockChainInfoResult
	infoErr       error

	createErr map[string]error
	loadErr   map[string]error
	created   []string
	loaded    []string

	height      int64
	generated   []int64
	generateErr error
	// keepMempool leaves transactions pending when blocks are mined.
	keepMempool bool

	mempool map[string]bool
	txs     map[string]*btcjson.TxRawResult
	blocks  map[string]*btcjson.GetBlockVerboseResult

	rawCalls []string
	shutdown bool
}

var _ ChainClient = (*fakeChain)(nil)

func newFakeChain() *fakeChain {
	return &fakeChain{
		info:      &btcjson.GetBlockChainInfoResult{Chain: "regtest", BestBlockHash: hashOf("genesis").String()},
		createErr: make(map[string]error),
		loadErr:   make(map[string]error),
		mempool:   make(map[string]bool),
		txs:       make(map[string]*btcjson.TxRawResult),
		blocks:    make(map[string]*btcjson.GetBlockVerboseResult),
	}
}

func (f *fakeChain) GetBlockCount() (int64, error) {
	return f.height, f.blockCountErr
}

func (f *fakeChain) GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	info := *f.info
	info.Blocks = int32(f.height)
	return &info, nil
}

func (f *fakeChain) CreateWallet(name string, _ ...rpcclient.CreateWalletOpt) (*btcjson.CreateWalletResult, error) {
	f.created = append(f.created, name)
	if err := f.createErr[name]; err != nil {
		return nil, err
	}
	return &btcjson.CreateWalletResult{Name: name}, nil
}

func (f *fakeChain) LoadWallet(name string) (*btcjson.LoadWalletResult, error) {
	f.loaded = append(f.loaded, name)
	if err := f.loadErr[name]; err != nil {
		return nil, err
	}
	return &btcjson.LoadWalletResult{Name: name}, nil
}

func (f *fakeChain) GenerateToAddress(n int64, _ btcutil.Address, _ *int64) ([]*chainhash.Hash, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.generated = append(f.generated, n)

	hashes := make([]*chainhash.Hash, 0, n)
	for i := int64(0); i < n; i++ {
		f.height++
		h := hashOf(fmt.Sprintf("block-%d", f.height))
		f.blocks[h.String()] = &btcjson.GetBlockVerboseResult{Hash: h.String(), Height: f.height}
		hashes = append(hashes, h)
	}
	if f.keepMempool || len(hashes) == 0 {
		return hashes, nil
	}
	for txid := range f.mempool {
		if tx, ok := f.txs[txid]; ok {
			tx.BlockHash = hashes[0].String()
			tx.Confirmations = uint64(n)
		}
		delete(f.mempool, txid)
	}
	return hashes, nil
}

func (f *fakeChain) GetMempoolEntry(txid string) (*btcjson.GetMempoolEntryResult, error) {
	if !f.mempool[txid] {
		return nil, &btcjson.RPCError{Code: -5, Message: "Transaction not in mempool"}
	}
	return &btcjson.GetMempoolEntryResult{VSize: 141, Height: f.height}, nil
}

func (f *fakeChain) GetRawTransactionVerbose(txid *chainhash.Hash) (*btcjson.TxRawResult, error) {
	tx, ok := f.txs[txid.String()]
	if !ok {
		return nil, &btcjson.RPCError{Code: -5, Message: "No such mempool or blockchain transaction"}
	}
	return tx, nil
}

func (f *fakeChain) GetBlockVerbose(hash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error) {
	block, ok := f.blocks[hash.String()]
	if !ok {
		return nil, &btcjson.RPCError{Code: -5, Message: "Block not found"}
	}
	return block, nil
}

func (f *fakeChain) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	f.rawCalls = append(f.rawCalls, method)
	if method != "getrawtransaction" || len(params) != 3 {
		return nil, &btcjson.RPCError{Code: -32601, Message: "Method not found"}
	}

	var txid, blockHash string
	if err := json.Unmarshal(params[0], &txid); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params[2], &blockHash); err != nil {
		return nil, err
	}
	tx, ok := f.txs[txid]
	if !ok || tx.BlockHash != blockHash {
		return nil, &btcjson.RPCError{Code: -5, Message: "No such transaction found in the provided block"}
	}
	return json.Marshal(tx)
}

func (f *fakeChain) Shutdown() { f.shutdown = true }

// fakeWallet plays a wallet endpoint bound to a fakeChain.
type fakeWallet struct {
	chain *fakeChain

	addrs   []btcutil.Address
	labels  []string
	addrErr error

	balance btcutil.Amount

	// payment is the transaction that the next send broadcasts.
	payment  *btcjson.TxRawResult
	sendErr  error
	sent     []btcutil.Amount
	sendArgs []json.RawMessage
	// incomplete makes the "send" RPC report complete=false.
	incomplete bool

	shutdown bool
}

var _ WalletClient = (*fakeWallet)(nil)

func (w *fakeWallet) GetBalance(string) (btcutil.Amount, error) {
	return w.balance, nil
}

func (w *fakeWallet) SendToAddress(_ btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	if w.sendErr != nil {
		return nil, w.sendErr
	}
	w.sent = append(w.sent, amount)
	return w.broadcast()
}

func (w *fakeWallet) broadcast() (*chainhash.Hash, error) {
	if w.payment == nil {
		return nil, &btcjson.RPCError{Code: -6, Message: "Insufficient funds"}
	}
	w.chain.txs[w.payment.Txid] = w.payment
	w.chain.mempool[w.payment.Txid] = true
	return chainhash.NewHashFromStr(w.payment.Txid)
}

func (w *fakeWallet) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "getnewaddress":
		if w.addrErr != nil {
			return nil, w.addrErr
		}
		if len(w.addrs) == 0 {
			return nil, &btcjson.RPCError{Code: -12, Message: "Keypool ran out"}
		}
		var label string
		if len(params) > 0 {
			_ = json.Unmarshal(params[0], &label)
		}
		w.labels = append(w.labels, label)
		addr := w.addrs[0]
		w.addrs = w.addrs[1:]
		return json.Marshal(addr.EncodeAddress())

	case "send":
		if w.sendErr != nil {
			return nil, w.sendErr
		}
		w.sendArgs = params
		if w.incomplete {
			return json.RawMessage(`{"complete":false,"hex":"00"}`), nil
		}
		txid, err := w.broadcast()
		if err != nil {
			return nil, err
		}
		return json.Marshal(SendResult{Complete: true, TxID: txid.String()})
	}
	return nil, &btcjson.RPCError{Code: -32601, Message: "Method not found"}
}

func (w *fakeWallet) Shutdown() { w.shutdown = true }

// scenario wires a chain, two wallets and a payment that spends a
// 20.0001 BTC coinbase output into 20 BTC to the trader and 0.00009 BTC
// change.
type scenario struct {
	chain  *fakeChain
	miner  *fakeWallet
	trader *fakeWallet

	minerAddr  btcutil.Address
	traderAddr btcutil.Address
	changeAddr btcutil.Address

	reward  *btcjson.TxRawResult
	payment *btcjson.TxRawResult
}

func newScenario(t *testing.T) *scenario {
	t.Helper()

	s := &scenario{
		chain:      newFakeChain(),
		minerAddr:  regtestAddr(t, 0x01),
		traderAddr: regtestAddr(t, 0x02),
		changeAddr: regtestAddr(t, 0x03),
	}

	s.reward = &btcjson.TxRawResult{
		Txid: hashOf("reward").String(),
		Vin:  []btcjson.Vin{{Coinbase: "51"}},
		Vout: []btcjson.Vout{
			vout(t, 0, 0, s.changeAddr),
			vout(t, 1, 20.0001, s.minerAddr),
		},
	}
	s.chain.txs[s.reward.Txid] = s.reward

	s.payment = &btcjson.TxRawResult{
		Txid: hashOf("payment").String(),
		Vin:  []btcjson.Vin{{Txid: s.reward.Txid, Vout: 1}},
		Vout: []btcjson.Vout{
			vout(t, 0, 0.00009, s.changeAddr),
			vout(t, 1, 20.0, s.traderAddr),
		},
	}

	s.miner = &fakeWallet{
		chain:   s.chain,
		addrs:   []btcutil.Address{s.minerAddr},
		balance: 150 * btcutil.SatoshiPerBitcoin,
		payment: s.payment,
	}
	s.trader = &fakeWallet{
		chain: s.chain,
		addrs: []btcutil.Address{s.traderAddr},
	}
	return s
}

// node returns a Node dialing the scenario's wallets by name.
func (s *scenario) node() *Node {
	wallets := map[string]*fakeWallet{"Miner": s.miner, "Trader": s.trader}
	dial := func(name string) (WalletClient, error) {
		w, ok := wallets[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown wallet %s", ErrConnection, name)
		}
		return w, nil
	}
	return NewNode(s.chain, dial, &chaincfg.RegressionNetParams)
}
