package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritersDefaultPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := FileConfig{Dir: dir}
	outW, errW, err := cfg.Writers("myproject")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers when Dir is set")
	}
	if _, err := outW.Write([]byte("out\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("err\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	ob, err := os.ReadFile(filepath.Join(dir, "myproject.stdout.log"))
	if err != nil || !strings.Contains(string(ob), "out") {
		t.Fatalf("stdout log missing: %v %q", err, string(ob))
	}
	eb, err := os.ReadFile(filepath.Join(dir, "myproject.stderr.log"))
	if err != nil || !strings.Contains(string(eb), "err") {
		t.Fatalf("stderr log missing: %v %q", err, string(eb))
	}
}

func TestWritersExplicitPathOverridesDir(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.log")
	cfg := FileConfig{Dir: dir, StdoutPath: explicit}
	outW, _, err := cfg.Writers("ignored")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if _, err := outW.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = outW.Close()
	if _, err := os.Stat(explicit); err != nil {
		t.Fatalf("explicit path not used: %v", err)
	}
}

func TestWritersNoConfig(t *testing.T) {
	outW, errW, err := FileConfig{}.Writers("x")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers with empty config")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"critical": slog.LevelError,
		"bogus":    slog.LevelInfo,
		"":         slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewColorHandlerWritesLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, true)
	log.Debug("dbg")
	log.Info("inf")
	log.Warn("wrn")
	log.Error("err")
	out := buf.String()
	for _, want := range []string{"dbg", "inf", "wrn", "err", "\033["} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}
