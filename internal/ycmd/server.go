// Package ycmd implements the client side of the backend completion server:
// process lifecycle, the NULL/STARTING/RUNNING/STOPPING state machine, and the
// HMAC-authenticated HTTP+JSON protocol.
package ycmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sublime-ycmd/sublime-ycmd/internal/hmacutil"
	"github.com/sublime-ycmd/sublime-ycmd/internal/launch"
	"github.com/sublime-ycmd/sublime-ycmd/internal/metrics"
	"github.com/sublime-ycmd/sublime-ycmd/internal/process"
)

// defaultStatusWait bounds how long a request waits for the server to reach
// RUNNING when the caller supplied no explicit timeout.
const defaultStatusWait = time.Second

const loopbackHost = "127.0.0.1"

// Server is a self-contained handle on one backend completion server: it owns
// the process, the connection parameters, and the HMAC secret, and exposes
// the backend's API as blocking methods.
//
// All shared fields are guarded by mu. Blocking work (process launch, HTTP
// round trips, process waits) happens with the lock released; state is copied
// out under the lock, the call made, and the result committed under the lock
// again.
type Server struct {
	mu      sync.Mutex
	changed chan struct{} // closed and replaced on every status change

	status   Status
	hostname string
	port     int
	hmac     []byte // set exactly once, at startup; never logged
	label    string
	workDir  string

	proc        *process.Handle
	stdout      *process.Spool
	stderr      *process.Spool
	logClosers  []io.Closer
	optionsFile string

	client *http.Client
	log    *slog.Logger
}

// Info is a read-only snapshot of a server's identity and state.
type Info struct {
	Label    string `json:"label"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Status   string `json:"status"`
	PID      int    `json:"pid,omitempty"`
	WorkDir  string `json:"workdir"`
}

// NewServer creates an empty handle in the NULL state. Start fills it in.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		changed: make(chan struct{}),
		client:  &http.Client{},
		log:     log,
	}
}

// Start launches a backend process using params. It allocates a loopback
// address and an unused port, generates a fresh HMAC secret, writes the
// one-shot options file, spawns the process, and transitions to RUNNING if
// the process is alive immediately afterwards. On any failure the server
// reverts to NULL and the options file is cleaned up.
func (s *Server) Start(params launch.Params) error {
	params = params.Normalized()
	if err := params.Check(); err != nil {
		s.setStatus(StatusNull)
		return err
	}
	s.setStatus(StatusStarting)

	port, err := launch.FreePort(loopbackHost)
	if err != nil {
		s.setStatus(StatusNull)
		return err
	}
	label := filepath.Base(params.WorkDir)

	// Connection parameters go in early so log lines identify the server.
	s.mu.Lock()
	s.hostname = loopbackHost
	s.port = port
	s.label = label
	s.workDir = params.WorkDir
	log := s.log.With("server", label, "addr", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
	s.mu.Unlock()

	secret, err := hmacutil.NewSecret()
	if err != nil {
		s.setStatus(StatusNull)
		return fmt.Errorf("ycmd: generate hmac secret: %w", err)
	}
	optionsFile, err := launch.WriteOptionsFile(params.SettingsPath, secret)
	if err != nil {
		log.Error("failed to generate backend options file", "error", err)
		s.setStatus(StatusNull)
		return err
	}

	stdout, stderr, closers, spoolOut, spoolErr, err := s.openOutput(params, label)
	if err != nil {
		launch.RemoveOptionsFile(optionsFile)
		s.setStatus(StatusNull)
		return err
	}

	proc, err := process.Start(process.Spec{
		Binary: params.Interpreter,
		Args:   params.Args(loopbackHost, port, optionsFile),
		Dir:    params.WorkDir,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		log.Error("failed to launch backend", "error", err)
		launch.RemoveOptionsFile(optionsFile)
		closeAll(closers)
		metrics.IncStart("error")
		s.setStatus(StatusNull)
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.hmac = secret
	s.stdout = spoolOut
	s.stderr = spoolErr
	s.logClosers = closers
	s.optionsFile = optionsFile
	s.log = log
	s.mu.Unlock()

	if !proc.Alive() {
		log.Warn("backend exited immediately after launch")
		s.mu.Lock()
		s.proc = nil
		s.mu.Unlock()
		launch.RemoveOptionsFile(optionsFile)
		closeAll(closers)
		metrics.IncStart("dead")
		s.setStatus(StatusNull)
		return fmt.Errorf("ycmd: backend exited immediately after launch")
	}

	log.Debug("backend launched", "pid", proc.PID())
	metrics.IncStart("ok")
	s.setStatus(StatusRunning)
	return nil
}

// openOutput decides where the backend's stdio goes: rotated log files when
// capture is configured, in-memory spools otherwise.
func (s *Server) openOutput(params launch.Params, label string) (stdout, stderr io.Writer, closers []io.Closer, spoolOut, spoolErr *process.Spool, err error) {
	capture := params.CaptureLog
	if capture.Dir != "" || capture.StdoutPath != "" || capture.StderrPath != "" {
		outW, errW, werr := capture.Writers(label)
		if werr != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("ycmd: open capture logs: %w", werr)
		}
		if outW != nil {
			stdout = outW
			closers = append(closers, outW)
		}
		if errW != nil {
			stderr = errW
			closers = append(closers, errW)
		}
		return stdout, stderr, closers, nil, nil, nil
	}
	spoolOut = process.NewSpool(0)
	spoolErr = process.NewSpool(0)
	return spoolOut, spoolErr, nil, spoolOut, spoolErr, nil
}

// Stop shuts the backend down. When hard is true it kills the process
// outright; otherwise it posts /shutdown and lets the process exit. It then
// waits up to timeout for the exit (timeout <= 0 waits indefinitely) and
// transitions to NULL. Calling Stop on a server that is not alive is a no-op.
func (s *Server) Stop(hard bool, timeout time.Duration) error {
	if !s.IsAlive(0) {
		return nil
	}

	s.mu.Lock()
	proc := s.proc
	stopping := s.status == StatusStopping
	s.mu.Unlock()
	if proc == nil {
		return nil
	}

	if hard {
		_ = proc.Kill()
		metrics.IncStop("hard")
	} else if !stopping {
		// The backend usually exits before finishing the response, so a
		// connection error here is expected.
		if _, err := s.send(HandlerShutdown, nil, http.MethodPost, timeout); err != nil {
			s.logger().Debug("shutdown request did not complete", "error", err)
		}
		metrics.IncStop("graceful")
	}

	s.setStatus(StatusStopping)

	if err := proc.Wait(timeout); errors.Is(err, process.ErrWaitTimeout) {
		return ErrTimeout
	}

	s.mu.Lock()
	s.proc = nil
	closers := s.logClosers
	s.logClosers = nil
	optionsFile := s.optionsFile
	s.optionsFile = ""
	s.mu.Unlock()
	closeAll(closers)
	// The backend deletes the options file on read; this only catches a
	// process that died before getting that far.
	launch.RemoveOptionsFile(optionsFile)
	s.setStatus(StatusNull)
	return nil
}

// IsAlive reports whether the backend process is up. With timeout == 0 it is
// a fast local check that never touches the network: it trusts the process
// handle's state. With a positive timeout it additionally sends a /healthy
// probe; a failed probe demotes the server to NULL, a timed-out probe leaves
// the state unchanged (the server may merely be busy).
func (s *Server) IsAlive(timeout time.Duration) bool {
	s.mu.Lock()
	st := s.status
	proc := s.proc
	s.mu.Unlock()

	if st != StatusRunning && st != StatusStopping {
		return false
	}
	if proc == nil {
		if st != StatusStopping {
			s.logger().Warn("status is running but no process handle exists, demoting to null")
		}
		s.setStatus(StatusNull)
		return false
	}
	if !proc.Alive() {
		s.logger().Debug("backend process has died, demoting to null")
		s.clearProcess()
		s.setStatus(StatusNull)
		return false
	}
	if st == StatusStopping {
		// Shutting down; not usable even though the process still exists.
		return false
	}
	if timeout <= 0 {
		return true
	}

	if _, err := s.send(HandlerHealthy, nil, http.MethodGet, timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			// May still be alive; do not demote.
			return false
		}
		s.logger().Warn("health check failed, demoting to null", "error", err)
		s.clearProcess()
		s.setStatus(StatusNull)
		return false
	}
	return true
}

// IsReady probes /ready: the backend is healthy and its completers are
// initialized.
func (s *Server) IsReady(timeout time.Duration) bool {
	_, err := s.send(HandlerReady, nil, http.MethodGet, timeout)
	return err == nil
}

// IsNull reports whether the server has no backend process.
func (s *Server) IsNull() bool { return s.CurrentStatus() == StatusNull }

// IsStarting reports whether a launch is in flight.
func (s *Server) IsStarting() bool { return s.CurrentStatus() == StatusStarting }

// IsStopping reports whether a shutdown is in flight.
func (s *Server) IsStopping() bool { return s.CurrentStatus() == StatusStopping }

// CurrentStatus returns the lifecycle status.
func (s *Server) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// WaitForStatus blocks until the server reaches any of the target statuses or
// timeout elapses (timeout <= 0 blocks indefinitely). On timeout it returns
// ErrTimeout. This is the only cross-thread wait primitive in the core.
func (s *Server) WaitForStatus(timeout time.Duration, targets ...Status) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		s.mu.Lock()
		if statusIn(s.status, targets) {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
			// status changed; re-check
		case <-deadline:
			return ErrTimeout
		}
	}
}

// setStatus transitions the state machine and wakes all WaitForStatus
// callers. Unexpected transitions are logged but performed anyway; a dead
// process must always be able to reach NULL.
func (s *Server) setStatus(to Status) {
	s.mu.Lock()
	from := s.status
	if valid := validFrom(to); valid != nil && !statusIn(from, valid) {
		s.log.Warn("unexpected state transition", "from", from.String(), "to", to.String())
	}
	s.status = to
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

func (s *Server) clearProcess() {
	s.mu.Lock()
	s.proc = nil
	s.mu.Unlock()
}

func (s *Server) logger() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// send is the single request primitive every RPC goes through. It blocks
// until the server is RUNNING (bounded by timeout, default one second), signs
// the request, verifies the response signature, and returns the raw JSON
// payload. A nil body with an empty method defaults to GET, otherwise POST.
func (s *Server) send(handler string, body []byte, method string, timeout time.Duration) (json.RawMessage, error) {
	s.mu.Lock()
	if s.status == StatusStopping {
		s.mu.Unlock()
		return nil, ErrStopping
	}
	s.mu.Unlock()

	waitTimeout := timeout
	if waitTimeout <= 0 {
		waitTimeout = defaultStatusWait
	}
	if err := s.WaitForStatus(waitTimeout, StatusRunning); err != nil {
		s.logger().Warn("server not ready, dropping request", "handler", handler)
		metrics.IncRequestError("not_running")
		if s.CurrentStatus() == StatusNull {
			// Nothing is starting; the timeout was not a race with startup.
			return nil, ErrNotRunning
		}
		return nil, err
	}

	if method == "" {
		if body == nil {
			method = http.MethodGet
		} else {
			method = http.MethodPost
		}
	}

	s.mu.Lock()
	host := s.hostname
	port := s.port
	secret := s.hmac
	s.mu.Unlock()

	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + handler

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ycmd: build request: %w", err)
	}
	req.Header.Set(hmacutil.Header, hmacutil.SumRequest(secret, method, handler, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	metrics.IncRequest(handler)
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.IncRequestError("timeout")
			return nil, ErrTimeout
		}
		metrics.IncRequestError("connection")
		return nil, fmt.Errorf("ycmd: request %s: %w", handler, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncRequestError("read")
		return nil, fmt.Errorf("ycmd: read response: %w", err)
	}

	// Verify before trusting anything about the payload. A mismatch means
	// the response did not come from the party holding our secret.
	if len(data) > 0 {
		if !hmacutil.Verify(secret, data, resp.Header.Get(hmacutil.Header)) {
			s.logger().Error("response hmac mismatch, dropping response", "handler", handler)
			metrics.IncHMACRejection()
			return nil, ErrHMACMismatch
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.IncRequestError("status")
		return nil, &StatusError{Code: resp.StatusCode, Body: data}
	}
	if len(data) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

func (s *Server) sendParams(handler string, rp *RequestParameters, method string, timeout time.Duration) (json.RawMessage, error) {
	var body []byte
	if rp != nil {
		var err error
		body, err = rp.Body()
		if err != nil {
			return nil, err
		}
	}
	return s.send(handler, body, method, timeout)
}

// GetCodeCompletions requests completion candidates at the position described
// by rp. The raw JSON payload is returned; turning it into UI strings is the
// embedding host's concern.
func (s *Server) GetCodeCompletions(rp *RequestParameters, timeout time.Duration) (json.RawMessage, error) {
	return s.sendParams(HandlerGetCompletions, rp, http.MethodPost, timeout)
}

// GetCompleterCommands fetches the subcommands the active completer defines
// for rp's filetype.
func (s *Server) GetCompleterCommands(rp *RequestParameters, timeout time.Duration) (json.RawMessage, error) {
	return s.sendParams(HandlerDefinedSubcommands, rp, http.MethodPost, timeout)
}

// RunCompleterCommand runs a named completer subcommand (GoTo, GetType, ...)
// with optional arguments.
func (s *Server) RunCompleterCommand(rp *RequestParameters, command string, args ...string) (json.RawMessage, error) {
	rpc := rp.Copy()
	cmdArgs := append([]string{command}, args...)
	rpc.SetExtra("command_arguments", cmdArgs)
	return s.sendParams(HandlerRunCompleterCommand, rpc, http.MethodPost, 0)
}

// GetDebugInfo fetches the backend's debug information for rp's file.
func (s *Server) GetDebugInfo(rp *RequestParameters, timeout time.Duration) (json.RawMessage, error) {
	return s.sendParams(HandlerDebugInfo, rp, http.MethodPost, timeout)
}

// GetDetailedDiagnostic fetches the full diagnostic text at rp's position.
func (s *Server) GetDetailedDiagnostic(rp *RequestParameters, timeout time.Duration) (json.RawMessage, error) {
	return s.sendParams(HandlerDetailedDiagnostic, rp, http.MethodPost, timeout)
}

// LoadExtraConf tells the backend that the extra configuration file at path
// is trusted and may be loaded.
func (s *Server) LoadExtraConf(path string) error {
	body, err := json.Marshal(map[string]string{"filepath": path})
	if err != nil {
		return err
	}
	_, err = s.send(HandlerLoadExtraConf, body, http.MethodPost, 0)
	return err
}

// IgnoreExtraConf tells the backend to ignore the extra configuration file at
// path.
func (s *Server) IgnoreExtraConf(path string) error {
	body, err := json.Marshal(map[string]string{"filepath": path})
	if err != nil {
		return err
	}
	_, err = s.send(HandlerIgnoreExtraConf, body, http.MethodPost, 0)
	return err
}

func (s *Server) notifyEvent(event string, rp *RequestParameters) error {
	rpc := rp.Copy()
	rpc.SetExtra("event_name", event)
	_, err := s.sendParams(HandlerEventNotification, rpc, http.MethodPost, 0)
	return err
}

// NotifyFileReadyToParse asks the backend to parse rp's file. Required for
// good semantic completions.
func (s *Server) NotifyFileReadyToParse(rp *RequestParameters) error {
	return s.notifyEvent(EventFileReadyToParse, rp)
}

// NotifyBufferEnter reports that rp's file has been activated.
func (s *Server) NotifyBufferEnter(rp *RequestParameters) error {
	return s.notifyEvent(EventBufferVisit, rp)
}

// NotifyBufferLeave reports that rp's file has been deactivated.
func (s *Server) NotifyBufferLeave(rp *RequestParameters) error {
	return s.notifyEvent(EventBufferUnload, rp)
}

// NotifyLeaveInsertMode reports that insert mode has been exited.
func (s *Server) NotifyLeaveInsertMode(rp *RequestParameters) error {
	return s.notifyEvent(EventInsertLeave, rp)
}

// NotifyCurrentIdentifierFinished reports that the identifier under the
// cursor is complete.
func (s *Server) NotifyCurrentIdentifierFinished(rp *RequestParameters) error {
	return s.notifyEvent(EventCurrentIdentifierFinished, rp)
}

// DrainOutput returns whatever the backend has written to its spooled stdout
// and stderr so far. Empty strings when output capture goes to log files.
func (s *Server) DrainOutput() (stdout, stderr string) {
	s.mu.Lock()
	so := s.stdout
	se := s.stderr
	s.mu.Unlock()
	if so != nil {
		stdout = so.Contents()
	}
	if se != nil {
		stderr = se.Contents()
	}
	return stdout, stderr
}

// Snapshot returns a copy of the server's identity and state for reporting.
func (s *Server) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Label:    s.label,
		Hostname: s.hostname,
		Port:     s.port,
		Status:   s.status.String(),
		WorkDir:  s.workDir,
	}
	if s.proc != nil {
		info.PID = s.proc.PID()
	}
	return info
}

// Label is the human-readable name, the basename of the working directory.
func (s *Server) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// WorkDir is the backend's working directory.
func (s *Server) WorkDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workDir
}

// String renders the connection address, "host:port".
func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hostname == "" || s.port == 0 {
		return "?:?"
	}
	return net.JoinHostPort(s.hostname, strconv.Itoa(s.port))
}

// PrettyString renders a human-readable description for logs and status
// output.
func (s *Server) PrettyString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hostname == "" || s.port == 0 {
		return "ycmd server (not started)"
	}
	addr := net.JoinHostPort(s.hostname, strconv.Itoa(s.port))
	return fmt.Sprintf("ycmd server %s [%s] (%s)", s.label, addr, s.status)
}

func statusIn(st Status, targets []Status) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if st == t {
			return true
		}
	}
	return false
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
