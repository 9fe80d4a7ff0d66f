// Package sycmd brokers code completion between an editor front end and
// per-project ycmd backend servers. It supervises one backend process per
// project working directory, speaks ycmd's HMAC-authenticated HTTP+JSON
// protocol, and caches server handles by view identity and working directory.
package sycmd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	iapi "github.com/sublime-ycmd/sublime-ycmd/internal/api"
	cfg "github.com/sublime-ycmd/sublime-ycmd/internal/config"
	"github.com/sublime-ycmd/sublime-ycmd/internal/launch"
	"github.com/sublime-ycmd/sublime-ycmd/internal/manager"
	"github.com/sublime-ycmd/sublime-ycmd/internal/metrics"
	"github.com/sublime-ycmd/sublime-ycmd/internal/store"
	"github.com/sublime-ycmd/sublime-ycmd/internal/task"
	"github.com/sublime-ycmd/sublime-ycmd/internal/ycmd"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

// Params describes how to launch one backend server.
type Params = launch.Params

// Server is one supervised backend completion server.
type Server = ycmd.Server

// ServerInfo is a read-only snapshot of a server.
type ServerInfo = ycmd.Info

// RequestParameters describes a file-scoped backend request.
type RequestParameters = ycmd.RequestParameters

// Status is a server's lifecycle state.
type Status = ycmd.Status

const (
	StatusNull     = ycmd.StatusNull
	StatusStarting = ycmd.StatusStarting
	StatusRunning  = ycmd.StatusRunning
	StatusStopping = ycmd.StatusStopping
)

// Sentinel errors surfaced by server operations.
var (
	ErrTimeout      = ycmd.ErrTimeout
	ErrNotRunning   = ycmd.ErrNotRunning
	ErrStopping     = ycmd.ErrStopping
	ErrHMACMismatch = ycmd.ErrHMACMismatch
	ErrNoWorkDir    = manager.ErrNoWorkDir
)

// ProjectResolver maps view identities to project working directories.
type ProjectResolver = manager.ProjectResolver

// ResolverFunc adapts a function to the ProjectResolver interface.
type ResolverFunc = manager.ResolverFunc

// PathResolver resolves working directories by walking up from a file path
// toward well-known project markers.
type PathResolver = manager.PathResolver

// Future is a handle on an asynchronously submitted task.
type Future = task.Future

// Journal is the optional SQLite lifecycle journal.
type Journal = store.Journal

// JournalEntry is one recorded lifecycle event.
type JournalEntry = store.Entry

// Config carries everything a Broker needs at construction time.
type Config = manager.Config

// Broker is a thin facade over the internal server manager. It provides a
// stable public API for embedding; there is deliberately no package-level
// instance.
type Broker struct{ inner *manager.Manager }

// New constructs a Broker.
func New(c Config) (*Broker, error) {
	inner, err := manager.New(c)
	if err != nil {
		return nil, err
	}
	return &Broker{inner: inner}, nil
}

// Get returns the server for the view's project, launching one if necessary.
// The returned server may still be starting.
func (b *Broker) Get(viewID string) (*Server, error) { return b.inner.Get(viewID) }

// Shutdown stops every managed server and reports whether all stopped
// cleanly.
func (b *Broker) Shutdown(hard bool, timeout time.Duration) bool {
	return b.inner.Shutdown(hard, timeout)
}

// SetBackgroundThreads replaces the worker pool with one of n workers.
func (b *Broker) SetBackgroundThreads(n int) { b.inner.SetBackgroundThreads(n) }

// NotifyEnter tells the view's server its file is active.
func (b *Broker) NotifyEnter(viewID string, rp *RequestParameters) (*Future, error) {
	return b.inner.NotifyEnter(viewID, rp)
}

// NotifyExit tells the view's server its buffer was unloaded.
func (b *Broker) NotifyExit(viewID string, rp *RequestParameters) (*Future, error) {
	return b.inner.NotifyExit(viewID, rp)
}

// NotifyUseExtraConf marks an extra configuration file as trusted.
func (b *Broker) NotifyUseExtraConf(viewID, path string) (*Future, error) {
	return b.inner.NotifyUseExtraConf(viewID, path)
}

// NotifyIgnoreExtraConf marks an extra configuration file as ignored.
func (b *Broker) NotifyIgnoreExtraConf(viewID, path string) (*Future, error) {
	return b.inner.NotifyIgnoreExtraConf(viewID, path)
}

// Snapshot returns a point-in-time view of every managed server.
func (b *Broker) Snapshot() []ServerInfo { return b.inner.Snapshot() }

// Count returns the number of managed servers.
func (b *Broker) Count() int { return b.inner.Count() }

// LoadConfig parses the broker's TOML configuration file.
func LoadConfig(path string) (cfg.FileConfig, error) { return cfg.Load(path) }

// OpenJournal opens the SQLite lifecycle journal at the given DSN.
func OpenJournal(dsn string) (*Journal, error) { return store.Open(dsn) }

// NewHTTPServer starts the debug/status HTTP API for the given broker.
func NewHTTPServer(addr, basePath string, b *Broker, journal *Journal) *http.Server {
	return iapi.NewServer(addr, basePath, b.inner, journal)
}

// Metrics helpers (public facade).

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
