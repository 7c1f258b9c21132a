/*
Package payflow walks a Bitcoin Core regtest node through a complete wallet payment and
reports what happened on chain.

A run creates or loads two wallets, mines spendable coins to the first, pays a fixed
amount to the second, confirms the payment and inspects the confirmed transaction to
work out its fee. The gathered facts are handed to a report writer.

Quick Start

	node, err := payflow.Dial(payflow.ConnConfig{
		Host:    "127.0.0.1:18443",
		User:    "alice",
		Pass:    "password",
		Network: "regtest",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer node.Shutdown()

	reporter, _ := report.New("text", report.NewFileSink("out.txt"))
	summary, err := payflow.NewWorkflow(node, payflow.DefaultPlan(), reporter, zerolog.Nop()).Run(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("fee: %v\n", summary.Fee)

# Steps

Run executes, in order, and stops at the first error:
  - health check and chain info (the node must report the configured network)
  - ensure both wallets (create, else load, else accept as already loaded)
  - new labelled address in the miner wallet, mine 103 blocks to it
  - check the miner balance, new labelled address in the trader wallet
  - pay 20 BTC with sendtoaddress (or the "send" RPC)
  - check the mempool entry, mine one block, check it left the mempool
  - fetch the confirmed transaction and its block, resolve every input to the
    output it spends, split outputs into payment and change, compute the fee
  - write the report

Coinbase rewards need 100 confirmations before they can be spent, so 103 blocks leave
three mature rewards in the miner wallet.

# Wallet Endpoints

Wallet calls go to the node endpoint suffixed with /wallet/<name>. Node.Wallet opens
and caches one client per wallet.

# Manual Schemas

rpcclient has no wrapper for the "send" RPC or for getrawtransaction with a block hash.
Both are issued through RawRequest with the request and response shapes declared in this
package (SendRequest, SendResult).

# Fees

All arithmetic is done in btcutil.Amount satoshis. Verbose RPC values are converted once
with btcutil.NewAmount, so an input of 20.0001 BTC paying 20 BTC with 0.00009 BTC change
yields a fee of exactly 1000 satoshis.

# Error Handling

Errors wrap one of the sentinels in errors.go together with the step that failed:
  - ErrConnection: node unreachable or credentials rejected
  - ErrRPC: the node answered with an error payload (*btcjson.RPCError stays in the chain)
  - ErrAddressNetworkMismatch: a generated address is not on the configured network
  - ErrSendIncomplete: the "send" RPC did not report completion
  - ErrRecipientOutput: zero or several outputs pay the recipient

# Node Management

NodeManager starts, stops and probes a local bitcoind through scripts/bitcoind_manager.sh.
The node must run with -txindex=1 so previous outputs can be looked up.

NOT for production use.
*/
package payflow
