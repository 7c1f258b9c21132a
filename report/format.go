package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"gopkg.in/yaml.v3"
)

// Format is a report encoding.
type Format string

const (
	// FormatText writes one fact per line in a fixed order.
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q", name)
}

// Encode writes s to w in format f.
func (f Format) Encode(w io.Writer, s *Summary) error {
	switch f {
	case FormatText:
		return encodeText(w, s)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newRecord(s))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newRecord(s)); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown report format %q", string(f))
}

// encodeText writes, one per line: txid, input address, input amount,
// payment address, payment amount, change address, change amount, fee,
// block height and block hash. Several change outputs are joined by commas
// and their amounts summed.
func encodeText(w io.Writer, s *Summary) error {
	changeAddrs := make([]string, 0, len(s.Change))
	for _, out := range s.Change {
		changeAddrs = append(changeAddrs, out.Address)
	}

	lines := []string{
		s.TxID,
		s.InputAddress(),
		btc(s.InputTotal()),
		s.Payment.Address,
		btc(s.Payment.Amount),
		strings.Join(changeAddrs, ","),
		btc(s.ChangeTotal()),
		btc(s.Fee),
		strconv.FormatInt(s.BlockHeight, 10),
		s.BlockHash,
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// btc formats an amount as a BTC decimal without trailing zeros.
func btc(a btcutil.Amount) string {
	return strconv.FormatFloat(a.ToBTC(), 'f', -1, 64)
}

type record struct {
	RunID        string       `json:"run_id" yaml:"run_id"`
	Network      string       `json:"network" yaml:"network"`
	TxID         string       `json:"txid" yaml:"txid"`
	Inputs       []recordPart `json:"inputs" yaml:"inputs"`
	InputAmount  float64      `json:"input_amount" yaml:"input_amount"`
	Payment      recordPart   `json:"payment" yaml:"payment"`
	Change       []recordPart `json:"change" yaml:"change"`
	ChangeAmount float64      `json:"change_amount" yaml:"change_amount"`
	Other        []recordPart `json:"other,omitempty" yaml:"other,omitempty"`
	Fee          float64      `json:"fee" yaml:"fee"`
	FeeSats      int64        `json:"fee_sats" yaml:"fee_sats"`
	BlockHeight  int64        `json:"block_height" yaml:"block_height"`
	BlockHash    string       `json:"block_hash" yaml:"block_hash"`
}

type recordPart struct {
	TxID    string  `json:"txid,omitempty" yaml:"txid,omitempty"`
	Index   uint32  `json:"index" yaml:"index"`
	Address string  `json:"address" yaml:"address"`
	Amount  float64 `json:"amount" yaml:"amount"`
}

func newRecord(s *Summary) record {
	r := record{
		RunID:        s.RunID,
		Network:      s.Network,
		TxID:         s.TxID,
		Inputs:       make([]recordPart, 0, len(s.Inputs)),
		InputAmount:  s.InputTotal().ToBTC(),
		Payment:      outputPart(s.Payment),
		Change:       make([]recordPart, 0, len(s.Change)),
		ChangeAmount: s.ChangeTotal().ToBTC(),
		Fee:          s.Fee.ToBTC(),
		FeeSats:      int64(s.Fee),
		BlockHeight:  s.BlockHeight,
		BlockHash:    s.BlockHash,
	}
	for _, in := range s.Inputs {
		r.Inputs = append(r.Inputs, recordPart{
			TxID:    in.TxID,
			Index:   in.Vout,
			Address: in.Address,
			Amount:  in.Amount.ToBTC(),
		})
	}
	for _, out := range s.Change {
		r.Change = append(r.Change, outputPart(out))
	}
	for _, out := range s.Other {
		r.Other = append(r.Other, outputPart(out))
	}
	return r
}

func outputPart(out Output) recordPart {
	return recordPart{Index: out.Index, Address: out.Address, Amount: out.Amount.ToBTC()}
}
