package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sycmd.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[ycmd]
root = "/opt/ycmd"
settings = "/opt/ycmd/ycmd/default_settings.json"
interpreter = "/usr/bin/python3"

[server]
idle_suicide_seconds = 600
check_interval_seconds = 10
log_level = "debug"
keep_logfiles = true

[server.capture]
dir = "/var/log/sycmd"
max_size_mb = 5

[broker]
background_threads = 8
listen = "127.0.0.1:9999"
log_level = "warn"
store = "/var/lib/sycmd/journal.db"
`)
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fc.Ycmd.Root != "/opt/ycmd" || fc.Ycmd.Interpreter != "/usr/bin/python3" {
		t.Fatalf("unexpected ycmd section: %+v", fc.Ycmd)
	}
	if fc.Server.IdleSuicideSeconds != 600 || !fc.Server.KeepLogFiles {
		t.Fatalf("unexpected server section: %+v", fc.Server)
	}
	if fc.Server.Capture == nil || fc.Server.Capture.Dir != "/var/log/sycmd" || fc.Server.Capture.MaxSizeMB != 5 {
		t.Fatalf("unexpected capture section: %+v", fc.Server.Capture)
	}
	if fc.Broker.BackgroundThreads != 8 || fc.Broker.Listen != "127.0.0.1:9999" {
		t.Fatalf("unexpected broker section: %+v", fc.Broker)
	}
	if fc.Broker.Store != "/var/lib/sycmd/journal.db" {
		t.Fatalf("store = %q", fc.Broker.Store)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[ycmd]
root = "/opt/ycmd"
`)
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fc.Broker.Listen != DefaultListen {
		t.Fatalf("listen = %q, want %q", fc.Broker.Listen, DefaultListen)
	}
	if fc.Server.Capture != nil {
		t.Fatalf("capture should be nil when omitted")
	}

	p := fc.Params()
	if p.RootDir != "/opt/ycmd" {
		t.Fatalf("params root = %q", p.RootDir)
	}
	n := p.Normalized()
	if n.IdleSuicideSeconds == 0 || n.CheckIntervalSeconds == 0 {
		t.Fatalf("normalized params missing defaults: %+v", n)
	}
}

func TestLoadParamsCarriesCapture(t *testing.T) {
	path := writeConfig(t, `
[ycmd]
root = "/opt/ycmd"

[server.capture]
dir = "/tmp/capture"
`)
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := fc.Params()
	if p.CaptureLog.Dir != "/tmp/capture" {
		t.Fatalf("capture dir = %q", p.CaptureLog.Dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, `[ycmd`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed toml")
	}
}
