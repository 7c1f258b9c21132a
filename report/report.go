// Package report renders the facts gathered by a payment run and delivers
// them to a sink.
package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// Input is a spent previous output.
type Input struct {
	TxID    string
	Vout    uint32
	Address string
	Amount  btcutil.Amount
}

// Output is an output of the reported transaction.
type Output struct {
	Index   uint32
	Address string
	Amount  btcutil.Amount
}

// Summary holds everything a report can show about one confirmed payment.
type Summary struct {
	RunID   string
	Network string
	TxID    string

	Inputs  []Input
	Payment Output
	Change  []Output
	Other   []Output
	Fee     btcutil.Amount

	BlockHeight int64
	BlockHash   string
}

// InputAddress is the address of the first input, or "" without inputs.
func (s *Summary) InputAddress() string {
	if len(s.Inputs) == 0 {
		return ""
	}
	return s.Inputs[0].Address
}

func (s *Summary) InputTotal() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range s.Inputs {
		total += in.Amount
	}
	return total
}

func (s *Summary) ChangeTotal() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range s.Change {
		total += out.Amount
	}
	return total
}

// Reporter encodes summaries in one format and hands them to a sink.
type Reporter struct {
	format Format
	sink   Sink
}

// New returns a Reporter for the named format ("text", "json" or "yaml").
func New(format string, sink Sink) (*Reporter, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("report: nil sink")
	}
	return &Reporter{format: f, sink: sink}, nil
}

// WriteReport encodes s and delivers it, keyed by its txid.
func (r *Reporter) WriteReport(ctx context.Context, s *Summary) error {
	var buf bytes.Buffer
	if err := r.format.Encode(&buf, s); err != nil {
		return fmt.Errorf("encode %s report: %w", r.format, err)
	}
	if err := r.sink.Deliver(ctx, s.TxID, buf.Bytes()); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	return nil
}

// Close releases the sink.
func (r *Reporter) Close() error {
	return r.sink.Close()
}
