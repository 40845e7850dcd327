package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "query-api", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "dataset", "loans")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "service=query-api") || !strings.Contains(out, "dataset=loans") {
		t.Fatalf("missing attributes: %s", out)
	}
}
