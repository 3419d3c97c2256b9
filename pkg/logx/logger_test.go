package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(Comp("signalgen"), Signal("minute"))

	log.Debug("dropped")
	log.Info("fired", Step(42), Key("consumer"), Err(nil), Stack(nil))
	log.Warn("failed", Err(errors.New("boom")))

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	first := lines[0]
	if first[KeyComp] != "signalgen" || first[KeySignal] != "minute" || first[KeySub] != "consumer" || first[KeyStep] != float64(42) {
		t.Fatalf("fields = %v", first)
	}
	if _, ok := first["err"]; ok {
		t.Fatalf("nil error logged: %v", first)
	}
	if _, ok := first[KeyStack]; ok {
		t.Fatalf("empty stack logged: %v", first)
	}
	if c, _ := first["caller"].(string); !strings.HasPrefix(c, "logger_test.go:") {
		t.Fatalf("caller = %q", c)
	}
	if lines[1]["err"] != "boom" || lines[1]["level"] != "warn" {
		t.Fatalf("second line = %v", lines[1])
	}
}

func TestWithDoesNotLeakBetweenChildren(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	parent := NewWriter(&buf, "debug").With(Comp("app"))
	a := parent.With(Signal("a"))
	b := parent.With(Signal("b"))
	a.Info("x")
	b.Info("y")
	parent.Info("z")

	lines := decodeLines(t, &buf)
	if len(lines) != 3 || lines[0][KeySignal] != "a" || lines[1][KeySignal] != "b" {
		t.Fatalf("lines = %v", lines)
	}
	if _, ok := lines[2][KeySignal]; ok {
		t.Fatalf("parent picked up child field: %v", lines[2])
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger not IsZero")
	}
	zero.Error("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatal("Nop reported IsZero")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "trace", "DEBUG", " info ", "warning", "error"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("ValidLevel(verbose) = true")
	}
}
