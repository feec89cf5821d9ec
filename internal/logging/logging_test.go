package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("json output carries component", func(t *testing.T) {
		var buf bytes.Buffer
		log := Component(New(&buf, "debug", "json"), "normalizer")
		log.Info().Int("rows", 3).Msg("done")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Expected JSON line, got %q: %v", buf.String(), err)
		}
		if entry["component"] != "normalizer" || entry["message"] != "done" || entry["rows"] != float64(3) {
			t.Errorf("Unexpected entry %v", entry)
		}
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, "warn", "json")
		log.Info().Msg("hidden")
		log.Warn().Msg("shown")
		if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
			t.Errorf("Unexpected output %q", buf.String())
		}
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, "loud", "json")
		log.Debug().Msg("hidden")
		log.Info().Msg("shown")
		if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
			t.Errorf("Unexpected output %q", buf.String())
		}
	})
}
