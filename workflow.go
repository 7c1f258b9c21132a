package payflow

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neverDefined/payflow/report"
)

// ---------------------------------------------------------------
//  Payment Workflow
// ---------------------------------------------------------------

// SendMethod selects the wallet RPC used to pay the trader.
type SendMethod string

const (
	SendToAddress SendMethod = "sendtoaddress"
	// SendRPC uses the "send" RPC through the manual schema in send.go.
	SendRPC SendMethod = "send"
)

// Plan holds the fixed parameters of a run.
type Plan struct {
	MinerWallet  string
	TraderWallet string
	MinerLabel   string
	TraderLabel  string

	// MatureBlocks must exceed the coinbase maturity of 100 blocks for the
	// first reward to become spendable.
	MatureBlocks  int64
	ConfirmBlocks int64

	Amount btcutil.Amount
	Method SendMethod
}

// DefaultPlan mines 103 blocks to "Miner" and pays 20 BTC to "Trader".
func DefaultPlan() Plan {
	return Plan{
		MinerWallet:   "Miner",
		TraderWallet:  "Trader",
		MinerLabel:    "Mining Reward",
		TraderLabel:   "Received",
		MatureBlocks:  103,
		ConfirmBlocks: 1,
		Amount:        20 * btcutil.SatoshiPerBitcoin,
		Method:        SendToAddress,
	}
}

// ReportWriter receives the summary of a completed run.
type ReportWriter interface {
	WriteReport(ctx context.Context, s *report.Summary) error
}

// Workflow runs the payment walkthrough against a node. A Workflow is not
// safe for concurrent use and assumes no other client touches its wallets
// during Run.
type Workflow struct {
	node     *Node
	plan     Plan
	reporter ReportWriter
	log      zerolog.Logger
	runID    string
}

// NewWorkflow returns a workflow that runs plan on node and hands the
// summary to reporter. reporter may be nil to skip reporting.
func NewWorkflow(node *Node, plan Plan, reporter ReportWriter, log zerolog.Logger) *Workflow {
	runID := uuid.NewString()
	return &Workflow{
		node:     node,
		plan:     plan,
		reporter: reporter,
		log:      log.With().Str("run", runID).Logger(),
		runID:    runID,
	}
}

// Run executes every step in order and stops at the first error. The
// context is checked between steps.
func (w *Workflow) Run(ctx context.Context) (*report.Summary, error) {
	p := w.plan

	if err := w.step(ctx, "connect", w.node.HealthCheck); err != nil {
		return nil, err
	}

	if err := w.step(ctx, "chain info", w.checkChain); err != nil {
		return nil, err
	}

	for _, name := range []string{p.MinerWallet, p.TraderWallet} {
		if err := w.step(ctx, "ensure wallet", func() error {
			return w.ensureWallet(name)
		}); err != nil {
			return nil, err
		}
	}

	var minerAddr btcutil.Address
	if err := w.step(ctx, "miner address", func() (err error) {
		minerAddr, err = w.newAddress(p.MinerWallet, p.MinerLabel)
		return err
	}); err != nil {
		return nil, err
	}

	if err := w.step(ctx, "mine to maturity", func() error {
		return w.mine(p.MatureBlocks, minerAddr)
	}); err != nil {
		return nil, err
	}

	if err := w.step(ctx, "miner balance", w.checkBalance); err != nil {
		return nil, err
	}

	var traderAddr btcutil.Address
	if err := w.step(ctx, "trader address", func() (err error) {
		traderAddr, err = w.newAddress(p.TraderWallet, p.TraderLabel)
		return err
	}); err != nil {
		return nil, err
	}

	var txid *chainhash.Hash
	if err := w.step(ctx, "send", func() (err error) {
		txid, err = w.pay(traderAddr)
		return err
	}); err != nil {
		return nil, err
	}

	if err := w.step(ctx, "mempool entry", func() error {
		return w.checkMempool(txid)
	}); err != nil {
		return nil, err
	}

	var summary *report.Summary
	if err := w.step(ctx, "confirm", func() (err error) {
		summary, err = w.confirm(txid, minerAddr, traderAddr)
		return err
	}); err != nil {
		return nil, err
	}

	if w.reporter != nil {
		if err := w.step(ctx, "report", func() error {
			return w.reporter.WriteReport(ctx, summary)
		}); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

func (w *Workflow) step(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (w *Workflow) checkChain() error {
	info, err := w.node.BlockChainInfo()
	if err != nil {
		return err
	}
	w.log.Info().
		Str("chain", info.Chain).
		Int32("blocks", info.Blocks).
		Str("bestBlockHash", info.BestBlockHash).
		Msg("Blockchain info")

	params, err := NetParams(info.Chain)
	if err != nil || params.Name != w.node.Params().Name {
		return fmt.Errorf("%w: node reports %q, configured %q",
			ErrNetworkMismatch, info.Chain, w.node.Params().Name)
	}
	return nil
}

func (w *Workflow) ensureWallet(name string) error {
	if err := w.node.EnsureWallet(name); err != nil {
		return err
	}
	if _, err := w.node.Wallet(name); err != nil {
		return err
	}
	w.log.Info().Str("wallet", name).Msg("Wallet ready")
	return nil
}

func (w *Workflow) newAddress(wallet, label string) (btcutil.Address, error) {
	addr, err := w.node.NewAddress(wallet, label)
	if err != nil {
		return nil, err
	}
	w.log.Info().
		Str("wallet", wallet).
		Str("label", label).
		Str("address", addr.EncodeAddress()).
		Msg("Generated address")
	return addr, nil
}

func (w *Workflow) mine(blocks int64, addr btcutil.Address) error {
	hashes, err := w.node.Warp(blocks, addr)
	if err != nil {
		return err
	}
	w.log.Info().
		Int64("blocks", blocks).
		Int("mined", len(hashes)).
		Str("address", addr.EncodeAddress()).
		Msg("Mined blocks")
	return nil
}

func (w *Workflow) checkBalance() error {
	bal, err := w.node.Balance(w.plan.MinerWallet)
	if err != nil {
		return err
	}
	w.log.Info().
		Str("wallet", w.plan.MinerWallet).
		Float64("balance", bal.ToBTC()).
		Msg("Wallet balance")
	if bal <= 0 {
		return fmt.Errorf("%w: %s", ErrNoSpendableBalance, w.plan.MinerWallet)
	}
	return nil
}

func (w *Workflow) pay(to btcutil.Address) (*chainhash.Hash, error) {
	var (
		txid *chainhash.Hash
		err  error
	)
	switch w.plan.Method {
	case SendRPC:
		txid, err = w.node.Send(w.plan.MinerWallet, SendRequest{
			Outputs: map[string]btcutil.Amount{to.EncodeAddress(): w.plan.Amount},
		})
	default:
		txid, err = w.node.SendToAddress(w.plan.MinerWallet, to, w.plan.Amount)
	}
	if err != nil {
		return nil, err
	}
	w.log.Info().
		Str("method", string(w.plan.Method)).
		Str("txid", txid.String()).
		Float64("amount", w.plan.Amount.ToBTC()).
		Msg("Sent payment")
	return txid, nil
}

func (w *Workflow) checkMempool(txid *chainhash.Hash) error {
	entry, err := w.node.MempoolEntry(txid)
	if err != nil {
		return err
	}
	w.log.Info().
		Str("txid", txid.String()).
		Int32("vsize", entry.VSize).
		Int64("height", entry.Height).
		Msg("Unconfirmed transaction")
	return nil
}

func (w *Workflow) confirm(txid *chainhash.Hash, minerAddr, traderAddr btcutil.Address) (*report.Summary, error) {
	hashes, err := w.node.Warp(w.plan.ConfirmBlocks, minerAddr)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("%w: no block mined", ErrStillInMempool)
	}

	pending, err := w.node.InMempool(txid)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fmt.Errorf("%w: %s", ErrStillInMempool, txid)
	}

	tx, err := w.node.Transaction(txid, hashes[0])
	if err != nil {
		return nil, err
	}
	blockHash, err := chainhash.NewHashFromStr(tx.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("tx %s block hash %q: %w", txid, tx.BlockHash, err)
	}
	block, err := w.node.Block(blockHash)
	if err != nil {
		return nil, err
	}

	params := w.node.Params()
	lookup := func(prev *chainhash.Hash) (*btcjson.TxRawResult, error) {
		return w.node.Transaction(prev, nil)
	}
	b, err := Analyze(tx, traderAddr.EncodeAddress(), lookup, params)
	if err != nil {
		return nil, err
	}

	summary := w.summarize(tx.Txid, b)
	summary.BlockHeight = block.Height
	summary.BlockHash = block.Hash

	w.log.Info().
		Str("txid", summary.TxID).
		Int64("blockHeight", summary.BlockHeight).
		Float64("input", b.InputTotal().ToBTC()).
		Float64("payment", b.Payment.Value.ToBTC()).
		Float64("change", b.ChangeTotal().ToBTC()).
		Float64("fee", b.Fee.ToBTC()).
		Msg("Confirmed transaction")
	return summary, nil
}

func (w *Workflow) summarize(txid string, b *Breakdown) *report.Summary {
	s := &report.Summary{
		RunID:   w.runID,
		Network: w.node.Params().Name,
		TxID:    txid,
		Payment: reportOutput(b.Payment),
		Fee:     b.Fee,
	}
	for _, in := range b.Inputs {
		s.Inputs = append(s.Inputs, report.Input{
			TxID:    in.TxID,
			Vout:    in.Vout,
			Address: in.Address,
			Amount:  in.Value,
		})
	}
	for _, out := range b.Change {
		s.Change = append(s.Change, reportOutput(out))
	}
	for _, out := range b.Other {
		s.Other = append(s.Other, reportOutput(out))
	}
	return s
}

func reportOutput(out Output) report.Output {
	return report.Output{Index: out.Index, Address: out.Address, Amount: out.Value}
}
