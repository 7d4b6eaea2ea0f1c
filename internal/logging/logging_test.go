package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetupWithWriterProductionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Str("show_id", "abc").Msg("show started")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("debug line emitted at info level")
	}
	if !strings.Contains(out, `"show_id":"abc"`) || !strings.Contains(out, `"service":"tokencast"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestSetupWithWriterDevelopmentLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("development", &buf)

	logger.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}
