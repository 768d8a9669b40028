package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"json":  FormatJSON,
		"JSON":  FormatJSON,
		"text":  FormatText,
		"tint":  FormatText,
		"human": FormatText,
		"":      FormatAuto,
		"bogus": FormatAuto,
	}
	for in, want := range cases {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"nope":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAutoFormatIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, FormatAuto, slog.LevelInfo)
	log.Info("hello", "id", 7)
	log.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "hello" || rec["id"] != float64(7) {
		t.Fatalf("record = %v", rec)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, FormatText, slog.LevelDebug).Debug("visible", "k", "v")
	if out := buf.String(); !strings.Contains(out, "visible") || !strings.Contains(out, "k=") {
		t.Fatalf("text output = %q", out)
	}
}

func TestIsTTYFalseForBuffer(t *testing.T) {
	if IsTTY(&bytes.Buffer{}) {
		t.Fatal("buffer reported as terminal")
	}
}

func TestNewWithFileWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "clipkeeper.log")
	var console bytes.Buffer
	log, closer, err := NewWithFile(&console, Options{Format: FormatText, Level: slog.LevelInfo, File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.With("component", "store").Info("stored", "id", 3)
	log.Debug("filtered")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), "stored") {
		t.Fatalf("console = %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("file lines = %d, want 1: %q", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("file line not json: %v", err)
	}
	if rec["msg"] != "stored" || rec["component"] != "store" || rec["id"] != float64(3) {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewWithFileWithoutPathIsConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	log, closer, err := NewWithFile(&console, Options{Format: FormatJSON, Level: slog.LevelInfo})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(console.String(), `"msg":"hello"`) {
		t.Fatalf("console = %q", console.String())
	}
}

func TestRotatingFileRollsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	f, err := OpenFile(path, 1, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 4; i++ {
		if _, err := f.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() != int64(len(chunk)) {
			t.Fatalf("%s size = %d, want %d", p, info.Size(), len(chunk))
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("backup beyond limit kept: %v", err)
	}
}

func TestRotatingFileRejectsWritesAfterClose(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "app.log"), 0, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.Write([]byte("late")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("write after close = %v, want os.ErrClosed", err)
	}
}
