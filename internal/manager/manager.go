// Package manager supervises a set of backend completion servers, one per
// project working directory, with lazy asynchronous startup and stale
// eviction.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sublime-ycmd/sublime-ycmd/internal/launch"
	"github.com/sublime-ycmd/sublime-ycmd/internal/metrics"
	"github.com/sublime-ycmd/sublime-ycmd/internal/store"
	"github.com/sublime-ycmd/sublime-ycmd/internal/task"
	"github.com/sublime-ycmd/sublime-ycmd/internal/ycmd"
)

// oldPoolGrace bounds how long a replaced worker pool gets to wind down on
// its detached goroutine.
const oldPoolGrace = 30 * time.Second

// ErrNoWorkDir is returned by Get when the resolver cannot produce a working
// directory for the view.
var ErrNoWorkDir = errors.New("manager: could not resolve a working directory")

// ProjectResolver resolves the project working directory for a view. The
// embedding host implements it from its own window/project metadata.
//
// fromProject reports whether dir came from real project metadata rather
// than a fallback such as the file's own directory. Only project-backed
// directories are cached under the view identity, so ownerless scratch
// buffers do not pollute the view cache.
type ProjectResolver interface {
	WorkDir(viewID string) (dir string, fromProject bool)
}

// ResolverFunc adapts a function to the ProjectResolver interface.
type ResolverFunc func(viewID string) (string, bool)

func (f ResolverFunc) WorkDir(viewID string) (string, bool) { return f(viewID) }

// Config carries everything a Manager needs at construction time.
type Config struct {
	// Template provides per-server launch parameters; Get fills in the
	// working directory per view.
	Template launch.Params
	// Resolver maps view identities to project working directories.
	Resolver ProjectResolver
	// Threads sizes the worker pool; <= 0 uses the pool default.
	Threads int
	// Journal, when non-nil, records server lifecycle events.
	Journal *store.Journal
	// Log defaults to slog.Default.
	Log *slog.Logger
}

// Manager owns the master server set and two lookup caches: view identity to
// server, and working directory to server. All three are mutated only under
// mu. Server startup and shutdown run on the worker pool so Get and Shutdown
// never block on process work.
type Manager struct {
	mu       sync.Mutex
	servers  map[*ycmd.Server]struct{}
	byView   map[string]*ycmd.Server
	byDir    map[string]*ycmd.Server
	pool     *task.Pool
	template launch.Params
	resolver ProjectResolver
	journal  *store.Journal
	log      *slog.Logger
}

// New constructs a Manager. There is deliberately no package-level instance;
// callers create one per session and pass it around.
func New(cfg Config) (*Manager, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("manager: a ProjectResolver is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		servers:  make(map[*ycmd.Server]struct{}),
		byView:   make(map[string]*ycmd.Server),
		byDir:    make(map[string]*ycmd.Server),
		pool:     task.NewPool(cfg.Threads),
		template: cfg.Template.Normalized(),
		resolver: cfg.Resolver,
		journal:  cfg.Journal,
		log:      log,
	}, nil
}

// Get returns the server for the view's project, creating and starting one
// if necessary. The returned server may still be STARTING; callers must
// tolerate that (RPCs wait for RUNNING internally). A stale cached server is
// evicted transparently and replaced.
func (m *Manager) Get(viewID string) (*ycmd.Server, error) {
	dir, fromProject := m.resolver.WorkDir(viewID)
	if dir == "" {
		return nil, ErrNoWorkDir
	}

	m.mu.Lock()
	srv := m.byView[viewID]
	if srv == nil {
		srv = m.byDir[dir]
	}
	if srv != nil && !usable(srv) {
		m.evictLocked(srv, "stale")
		srv = nil
	}

	created := false
	if srv == nil {
		srv = ycmd.NewServer(m.log.With("workdir", dir))
		m.servers[srv] = struct{}{}
		created = true
	}
	// The workdir entry is always refreshed; the view entry only when the
	// directory came from a real project.
	m.byDir[dir] = srv
	if fromProject {
		m.byView[viewID] = srv
	}
	metrics.SetRunningServers(len(m.servers))
	pool := m.pool
	params := m.template
	m.mu.Unlock()

	if !created {
		return srv, nil
	}

	params.WorkDir = dir
	started := srv
	if _, err := pool.Submit(func() (interface{}, error) {
		if err := started.Start(params); err != nil {
			m.log.Error("backend startup failed", "workdir", dir, "error", err)
			return nil, err
		}
		m.record(store.EventStarted, started)
		return nil, nil
	}); err != nil {
		m.mu.Lock()
		m.evictLocked(srv, "startup not submitted")
		m.mu.Unlock()
		return nil, fmt.Errorf("manager: submit startup: %w", err)
	}
	return srv, nil
}

// usable reports whether a cached server is worth keeping: either a launch
// is still in flight or the process is alive per the fast local check.
func usable(s *ycmd.Server) bool {
	return s.IsStarting() || s.IsAlive(0)
}

// evictLocked removes a server from both caches and then the master set, in
// that order so no cache entry ever outlives its master-set membership.
// Spooled stdio is drained into the log for post-mortem diagnostics.
func (m *Manager) evictLocked(s *ycmd.Server, reason string) {
	stdout, stderr := s.DrainOutput()
	if stdout != "" || stderr != "" {
		m.log.Debug("evicted server output", "server", s.Label(), "stdout", stdout, "stderr", stderr)
	}
	for id, cached := range m.byView {
		if cached == s {
			delete(m.byView, id)
		}
	}
	for dir, cached := range m.byDir {
		if cached == s {
			delete(m.byDir, dir)
		}
	}
	delete(m.servers, s)
	metrics.SetRunningServers(len(m.servers))
	metrics.IncStaleEviction()
	m.log.Debug("evicted server", "server", s.Label(), "reason", reason)
	m.record(store.EventEvicted, s)
}

// Shutdown stops every managed server, one stop task per server through the
// pool, and waits up to timeout for all of them (timeout <= 0 waits
// indefinitely). Servers that stopped cleanly are evicted. It reports
// whether every server shut down cleanly; callers typically follow a failed
// graceful shutdown with a hard one.
func (m *Manager) Shutdown(hard bool, timeout time.Duration) bool {
	m.mu.Lock()
	servers := make([]*ycmd.Server, 0, len(m.servers))
	for s := range m.servers {
		servers = append(servers, s)
	}
	pool := m.pool
	m.mu.Unlock()

	futures := make(map[*ycmd.Server]*task.Future, len(servers))
	clean := true
	for _, s := range servers {
		s := s
		f, err := pool.Submit(func() (interface{}, error) {
			return nil, s.Stop(hard, timeout)
		})
		if err != nil {
			m.log.Warn("could not submit stop task", "server", s.Label(), "error", err)
			clean = false
			continue
		}
		futures[s] = f
	}

	deadline := time.Now().Add(timeout)
	for s, f := range futures {
		wait := time.Duration(0)
		if timeout > 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				wait = time.Nanosecond
			}
		}
		if _, err := f.Wait(wait); err != nil {
			m.log.Warn("server did not stop cleanly", "server", s.Label(), "error", err)
			clean = false
			continue
		}
		m.record(store.EventStopped, s)
		m.mu.Lock()
		m.unregisterLocked(s)
		m.mu.Unlock()
	}
	return clean
}

// unregisterLocked is eviction without the diagnostics: caches first, master
// set last.
func (m *Manager) unregisterLocked(s *ycmd.Server) {
	for id, cached := range m.byView {
		if cached == s {
			delete(m.byView, id)
		}
	}
	for dir, cached := range m.byDir {
		if cached == s {
			delete(m.byDir, dir)
		}
	}
	delete(m.servers, s)
	metrics.SetRunningServers(len(m.servers))
}

// SetBackgroundThreads replaces the worker pool with one of n workers. The
// old pool winds down on a detached goroutine with a bounded grace period so
// reconfiguration never blocks the caller. Pools only grow in place; any
// other change is a wholesale replacement.
func (m *Manager) SetBackgroundThreads(n int) {
	replacement := task.NewPool(n)
	m.mu.Lock()
	old := m.pool
	m.pool = replacement
	m.mu.Unlock()

	if old != nil {
		go func() {
			if !old.Shutdown(true, oldPoolGrace) {
				m.log.Warn("old worker pool did not drain within grace period")
			}
		}()
	}
}

// NotifyEnter tells the view's server that its file is active: parse it and
// record the buffer visit. Runs on the pool; the returned future resolves
// when both notifications are delivered.
func (m *Manager) NotifyEnter(viewID string, rp *ycmd.RequestParameters) (*task.Future, error) {
	srv, err := m.Get(viewID)
	if err != nil {
		return nil, err
	}
	return m.submit(func() (interface{}, error) {
		if err := srv.NotifyFileReadyToParse(rp); err != nil {
			return nil, err
		}
		return nil, srv.NotifyBufferEnter(rp)
	})
}

// NotifyExit tells the view's server that its buffer was unloaded.
func (m *Manager) NotifyExit(viewID string, rp *ycmd.RequestParameters) (*task.Future, error) {
	srv, err := m.Get(viewID)
	if err != nil {
		return nil, err
	}
	return m.submit(func() (interface{}, error) {
		return nil, srv.NotifyBufferLeave(rp)
	})
}

// NotifyUseExtraConf marks an extra configuration file as trusted on the
// view's server.
func (m *Manager) NotifyUseExtraConf(viewID, path string) (*task.Future, error) {
	srv, err := m.Get(viewID)
	if err != nil {
		return nil, err
	}
	return m.submit(func() (interface{}, error) {
		return nil, srv.LoadExtraConf(path)
	})
}

// NotifyIgnoreExtraConf marks an extra configuration file as ignored on the
// view's server.
func (m *Manager) NotifyIgnoreExtraConf(viewID, path string) (*task.Future, error) {
	srv, err := m.Get(viewID)
	if err != nil {
		return nil, err
	}
	return m.submit(func() (interface{}, error) {
		return nil, srv.IgnoreExtraConf(path)
	})
}

func (m *Manager) submit(fn task.Func) (*task.Future, error) {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	return pool.Submit(fn)
}

// Snapshot returns a point-in-time view of every managed server.
func (m *Manager) Snapshot() []ycmd.Info {
	m.mu.Lock()
	servers := make([]*ycmd.Server, 0, len(m.servers))
	for s := range m.servers {
		servers = append(servers, s)
	}
	m.mu.Unlock()

	infos := make([]ycmd.Info, 0, len(servers))
	for _, s := range servers {
		infos = append(infos, s.Snapshot())
	}
	return infos
}

// Count returns the number of managed servers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.servers)
}

func (m *Manager) record(event string, s *ycmd.Server) {
	if m.journal == nil {
		return
	}
	info := s.Snapshot()
	if err := m.journal.Append(store.Entry{
		Event:   event,
		Label:   info.Label,
		WorkDir: info.WorkDir,
		PID:     info.PID,
		Port:    info.Port,
	}); err != nil {
		m.log.Warn("journal append failed", "event", event, "error", err)
	}
}
