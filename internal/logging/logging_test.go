package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "json")
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["message"] != "shown" || entry["component"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestInitFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "nonsense", "json")

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", zerolog.GlobalLevel())
	}
}
