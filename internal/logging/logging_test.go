package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithRunID(context.Background(), "run-42")
	log.With(String("variant", "full")).Info(ctx, "simulation finished", Int("flows", 7), Err(errors.New("boom")))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log record is not json: %v\n%s", err, buf.String())
	}
	for key, want := range map[string]any{
		"msg":     "simulation finished",
		"run_id":  "run-42",
		"variant": "full",
		"flows":   float64(7),
		"error":   "boom",
	} {
		if record[key] != want {
			t.Fatalf("%s = %v, want %v", key, record[key], want)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("output = %q", out)
	}
}

func TestRunIDFromContext(t *testing.T) {
	if id := RunIDFromContext(context.Background()); id != "" {
		t.Fatalf("run id of a bare context = %q", id)
	}
	if id := RunIDFromContext(ContextWithRunID(nil, "x")); id != "x" {
		t.Fatalf("run id = %q", id)
	}
	Noop().With(String("k", "v")).Error(context.Background(), "ignored")
}
