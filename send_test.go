package payflow

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
)

func TestSendRequest_Params(t *testing.T) {
	confTarget := int64(6)
	req := SendRequest{
		Outputs: map[string]btcutil.Amount{
			"bcrt1b": 150_000_000,
			"bcrt1a": 20 * btcutil.SatoshiPerBitcoin,
		},
		ConfTarget: &confTarget,
		Options:    map[string]any{"replaceable": true},
	}

	params, err := req.Params()
	if err != nil {
		t.Fatalf("Params() error = %v", err)
	}

	want := []string{
		`[{"bcrt1a":20},{"bcrt1b":1.5}]`,
		`6`,
		`null`,
		`null`,
		`{"replaceable":true}`,
	}
	if len(params) != len(want) {
		t.Fatalf("expected %d params, got %d", len(want), len(params))
	}
	for i := range want {
		if string(params[i]) != want[i] {
			t.Errorf("param %d = %s, want %s", i, params[i], want[i])
		}
	}
}

func TestNode_SendIncomplete(t *testing.T) {
	s := newScenario(t)
	s.miner.incomplete = true

	_, err := s.node().Send("Miner", SendRequest{
		Outputs: map[string]btcutil.Amount{s.traderAddr.EncodeAddress(): 100},
	})
	if !errors.Is(err, ErrSendIncomplete) {
		t.Fatalf("Send() error = %v, want ErrSendIncomplete", err)
	}
}
