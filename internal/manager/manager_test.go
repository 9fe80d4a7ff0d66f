package manager

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sublime-ycmd/sublime-ycmd/internal/launch"
	"github.com/sublime-ycmd/sublime-ycmd/internal/store"
	"github.com/sublime-ycmd/sublime-ycmd/internal/ycmd"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}
}

// fakeBackendTemplate builds launch parameters whose "interpreter" is a shell
// script that just stays alive, so servers reach RUNNING without a real
// backend checkout.
func fakeBackendTemplate(t *testing.T) launch.Params {
	t.Helper()
	dir := t.TempDir()

	interp := filepath.Join(dir, "fake-backend")
	if err := os.WriteFile(interp, []byte("#!/bin/sh\nsleep 30\n"), 0o755); err != nil {
		t.Fatalf("write fake backend: %v", err)
	}
	settings := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(settings, []byte(`{"auto_trigger": true}`), 0o644); err != nil {
		t.Fatalf("write settings template: %v", err)
	}
	return launch.Params{
		RootDir:      dir,
		SettingsPath: settings,
		Interpreter:  interp,
	}
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticResolver(dir string, fromProject bool) ProjectResolver {
	return ResolverFunc(func(string) (string, bool) { return dir, fromProject })
}

func newTestManager(t *testing.T, resolver ProjectResolver) *Manager {
	t.Helper()
	m, err := New(Config{
		Template: fakeBackendTemplate(t),
		Resolver: resolver,
		Log:      quietLog(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(true, 5*time.Second) })
	return m
}

func waitRunning(t *testing.T, s *ycmd.Server) {
	t.Helper()
	if err := s.WaitForStatus(5*time.Second, ycmd.StatusRunning); err != nil {
		t.Fatalf("server never reached running: %v", err)
	}
}

func TestManagerGetRequiresResolver(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without a resolver")
	}
}

func TestManagerGetNoWorkDir(t *testing.T) {
	m := newTestManager(t, staticResolver("", false))
	if _, err := m.Get("view-1"); !errors.Is(err, ErrNoWorkDir) {
		t.Fatalf("expected ErrNoWorkDir, got %v", err)
	}
}

func TestManagerGetSameServerWhileStarting(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t, staticResolver(t.TempDir(), true))

	first, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	// second call before startup completes must reuse the same instance
	second, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same server for repeated Get")
	}
	if m.Count() != 1 {
		t.Fatalf("expected one managed server, got %d", m.Count())
	}
	waitRunning(t, first)
}

func TestManagerGetSharesServerAcrossViews(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t, staticResolver(t.TempDir(), true))

	a, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("Get view-1: %v", err)
	}
	b, err := m.Get("view-2")
	if err != nil {
		t.Fatalf("Get view-2: %v", err)
	}
	if a != b {
		t.Fatalf("views in the same workdir should share one server")
	}
}

func TestManagerViewCacheOnlyForProjects(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t, staticResolver(t.TempDir(), false))

	if _, err := m.Get("view-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	m.mu.Lock()
	views := len(m.byView)
	dirs := len(m.byDir)
	m.mu.Unlock()
	if views != 0 {
		t.Fatalf("ownerless buffer should not be cached by view, got %d entries", views)
	}
	if dirs != 1 {
		t.Fatalf("workdir cache should always be refreshed, got %d entries", dirs)
	}
}

func TestManagerEvictsStaleServer(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t, staticResolver(t.TempDir(), true))

	first, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	waitRunning(t, first)
	if err := first.Stop(true, 5*time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	second, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("Get after stop: %v", err)
	}
	if second == first {
		t.Fatalf("stale server should have been evicted and replaced")
	}
	if m.Count() != 1 {
		t.Fatalf("expected one managed server after eviction, got %d", m.Count())
	}

	// eviction must leave no cache entry resolving to the old server
	m.mu.Lock()
	for _, s := range m.byView {
		if s == first {
			m.mu.Unlock()
			t.Fatalf("view cache still holds the evicted server")
		}
	}
	for _, s := range m.byDir {
		if s == first {
			m.mu.Unlock()
			t.Fatalf("workdir cache still holds the evicted server")
		}
	}
	_, inMaster := m.servers[first]
	m.mu.Unlock()
	if inMaster {
		t.Fatalf("master set still holds the evicted server")
	}
	waitRunning(t, second)
}

func TestManagerShutdownStopsAll(t *testing.T) {
	requireUnix(t)
	dirs := map[string]string{"view-1": t.TempDir(), "view-2": t.TempDir()}
	m := newTestManager(t, ResolverFunc(func(id string) (string, bool) {
		return dirs[id], true
	}))

	for id := range dirs {
		srv, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		waitRunning(t, srv)
	}
	if m.Count() != 2 {
		t.Fatalf("expected two managed servers, got %d", m.Count())
	}

	if !m.Shutdown(true, 10*time.Second) {
		t.Fatalf("expected a clean shutdown")
	}
	if m.Count() != 0 {
		t.Fatalf("expected no servers after shutdown, got %d", m.Count())
	}
}

func TestManagerSetBackgroundThreads(t *testing.T) {
	requireUnix(t)
	m := newTestManager(t, staticResolver(t.TempDir(), true))

	m.SetBackgroundThreads(2)

	// the replacement pool must accept new work
	srv, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("Get after pool swap: %v", err)
	}
	waitRunning(t, srv)
}

func TestManagerJournalRecordsLifecycle(t *testing.T) {
	requireUnix(t)
	journal, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer func() { _ = journal.Close() }()

	m, err := New(Config{
		Template: fakeBackendTemplate(t),
		Resolver: staticResolver(t.TempDir(), true),
		Journal:  journal,
		Log:      quietLog(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv, err := m.Get("view-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	waitRunning(t, srv)
	if !m.Shutdown(true, 10*time.Second) {
		t.Fatalf("shutdown was not clean")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := journal.Recent(10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		seen := map[string]bool{}
		for _, e := range entries {
			seen[e.Event] = true
		}
		if seen[store.EventStarted] && seen[store.EventStopped] {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal missing lifecycle events: %+v", entries)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
