package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink receives encoded reports.
type Sink interface {
	// Deliver stores or forwards body. key identifies the report.
	Deliver(ctx context.Context, key string, body []byte) error
	Close() error
}

// FileSink writes each report to a fixed path, replacing earlier content.
type FileSink struct {
	Path string
}

// NewFileSink returns a sink writing to path. The path "-" selects stdout.
func NewFileSink(path string) Sink {
	if path == "-" {
		return &WriterSink{W: os.Stdout}
	}
	return &FileSink{Path: path}
}

func (s *FileSink) Deliver(_ context.Context, _ string, body []byte) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, body, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }

// WriterSink appends reports to an io.Writer.
type WriterSink struct {
	W io.Writer
}

func (s *WriterSink) Deliver(_ context.Context, _ string, body []byte) error {
	_, err := s.W.Write(body)
	return err
}

func (s *WriterSink) Close() error { return nil }
