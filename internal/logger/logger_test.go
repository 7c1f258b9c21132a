package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_Level(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for level, want := range tests {
		Init(level, &bytes.Buffer{})
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("Init(%q) level = %v, want %v", level, got, want)
		}
	}
}

func TestGetLogger_WritesToOutput(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Init("info", &buf)
	GetLogger().Info().Str("wallet", "Miner").Msg("wallet ready")

	out := buf.String()
	if !strings.Contains(out, "wallet ready") || !strings.Contains(out, "Miner") {
		t.Errorf("unexpected log output %q", out)
	}
}
