// Package process is a thin supervision layer over a single child process:
// spawn, poll-alive, signal-kill, and wait-with-timeout, with configurable
// stdio redirection (discard, pipe to a writer, or an in-memory spool).
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrWaitTimeout is returned by Wait when the child does not exit in time.
var ErrWaitTimeout = errors.New("process: wait timed out")

// Spec describes how to launch a child process. Binary is required.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string // nil inherits the parent environment

	// Stdout/Stderr receive the child's output. A nil writer discards the
	// stream. A *Spool captures it in memory for later diagnostics.
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is a started child process. Every Handle has a reaper goroutine
// waiting on the child, so Wait and Alive never race os/exec internals.
type Handle struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	waitDone chan struct{} // closed by the reaper once cmd.Wait returns
	waitErr  error
}

// Start launches the child described by spec. On success the returned Handle
// is alive and being reaped in the background.
func Start(spec Spec) (*Handle, error) {
	if spec.Binary == "" {
		return nil, fmt.Errorf("process: no binary specified")
	}
	// ok: the command line is computed by this module, not taken from an
	// untrusted source.
	// #nosec G204
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	setSysProcAttr(cmd)

	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else {
		cmd.Stdout = devNull()
	}
	if spec.Stderr != nil {
		cmd.Stderr = spec.Stderr
	} else {
		cmd.Stderr = devNull()
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", spec.Binary, err)
	}

	h := &Handle{cmd: cmd, waitDone: make(chan struct{})}
	go h.reap()
	return h, nil
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.waitDone)
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Alive reports whether the child is still running. It is a cheap local check
// and never blocks.
func (h *Handle) Alive() bool {
	select {
	case <-h.waitDone:
		return false
	default:
		return true
	}
}

// Wait blocks until the child exits or timeout elapses. A timeout of zero or
// less waits indefinitely. On timeout it returns ErrWaitTimeout; otherwise it
// returns the child's exit error, if any.
func (h *Handle) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-h.waitDone
	} else {
		select {
		case <-h.waitDone:
		case <-time.After(timeout):
			return ErrWaitTimeout
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Kill forcibly terminates the child (and its process group, where the
// platform supports it). No-op if the child has already exited.
func (h *Handle) Kill() error {
	if !h.Alive() {
		return nil
	}
	return killGroup(h.cmd)
}

func devNull() *os.File {
	f, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	return f
}
