package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterTagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "escrowledger", "warn")

	logger.Info("dropped")
	logger.Warn("kept", "escrow_id", "e-1")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" || rec["service"] != "escrowledger" || rec["escrow_id"] != "e-1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewWithWriterDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "", "verbose")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at the default level, got %q", buf.String())
	}
	logger.Info("shown")
	if buf.Len() == 0 {
		t.Fatalf("info should be logged")
	}
}
