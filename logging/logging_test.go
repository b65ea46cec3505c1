package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

type cell struct{ x, y int }

func (c cell) String() string { return "(1,2)" }

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
	return m
}

func TestPrettyJSONHandler_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyJSONHandler(&buf, nil))
	l.With("generation", "gen_1").WithGroup("tick").Info("resolved",
		"turn", 4,
		"pos", cell{1, 2},
		"error", errors.New("cell occupied"),
		slog.Group("counts", "kills", 2),
	)

	m := decode(t, buf.Bytes())
	if m["msg"] != "resolved" || m["level"] != "INFO" || m["generation"] != "gen_1" {
		t.Fatalf("payload=%v", m)
	}
	tick, ok := m["tick"].(map[string]any)
	if !ok {
		t.Fatalf("tick group missing: %v", m)
	}
	if tick["turn"] != float64(4) || tick["pos"] != "(1,2)" || tick["error"] != "cell occupied" {
		t.Fatalf("tick=%v", tick)
	}
	counts, ok := tick["counts"].(map[string]any)
	if !ok || counts["kills"] != float64(2) {
		t.Fatalf("counts=%v", tick["counts"])
	}
}

func TestPrettyJSONHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}
	l.Warn("kept")
	if decode(t, buf.Bytes())["msg"] != "kept" {
		t.Fatalf("got %s", buf.String())
	}
}

func TestPrettyJSONHandler_ReplaceAttr(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return a
	}}
	slog.New(NewPrettyJSONHandler(&buf, opts)).Info("no time")
	m := decode(t, buf.Bytes())
	if _, ok := m["time"]; ok {
		t.Fatalf("time not removed: %v", m)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"", "text", "json", "pretty", "PRETTY"} {
		var buf bytes.Buffer
		l, err := NewLogger(&buf, format, slog.LevelDebug)
		if err != nil {
			t.Fatalf("%q: %v", format, err)
		}
		l.Debug("hello")
		if buf.Len() == 0 {
			t.Fatalf("%q: nothing written", format)
		}
	}
	if _, err := NewLogger(&bytes.Buffer{}, "xml", slog.LevelInfo); err == nil {
		t.Fatalf("xml format accepted")
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	if err != nil || l != slog.LevelWarn {
		t.Fatalf("level=%v err=%v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("bad level accepted")
	}
}
