// Package launch computes everything needed to start one ycmd backend
// process: normalized startup parameters, the command line, and the one-shot
// options file carrying the HMAC secret.
package launch

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/sublime-ycmd/sublime-ycmd/internal/logger"
)

// Defaults for omitted parameters.
const (
	// DefaultIdleSuicideSeconds is how long an idle backend lives before it
	// shuts itself down. The broker detects the exit and relaunches on the
	// next request.
	DefaultIdleSuicideSeconds = 5 * 60

	// DefaultCheckIntervalSeconds is the longest the backend waits on a
	// semantic subserver before falling back to identifier completion.
	DefaultCheckIntervalSeconds = 5
)

// Params describes how to launch one backend instance. RootDir is required;
// every other field has a computed default. Params is a value type: copies
// are independent, so a manager-held template is never corrupted by per-view
// derivation.
type Params struct {
	// RootDir is the path to the ycmd repository checkout.
	RootDir string

	// SettingsPath is the default-options template JSON shipped with ycmd.
	// Empty means RootDir/ycmd/default_settings.json.
	SettingsPath string

	// WorkDir is the backend's working directory and the manager's cache
	// key. Empty means the current working directory.
	WorkDir string

	// Interpreter is the python binary used to run the ycmd module. Empty
	// means the first python3/python found on PATH.
	Interpreter string

	IdleSuicideSeconds   int
	CheckIntervalSeconds int

	// Debug logging options for the backend itself. LogLevel empty disables
	// the extra flags entirely.
	LogLevel      string
	StdoutLogPath string
	StderrLogPath string
	KeepLogFiles  bool

	// CaptureLog configures rotated capture of the backend's stdio by the
	// broker. Zero value disables capture (output is spooled in memory).
	CaptureLog logger.FileConfig
}

// Normalized returns a copy of p with every omitted field replaced by its
// computed default. It does not touch the file system beyond PATH lookup and
// Getwd.
func (p Params) Normalized() Params {
	out := p
	if out.SettingsPath == "" && out.RootDir != "" {
		out.SettingsPath = filepath.Join(out.RootDir, "ycmd", "default_settings.json")
	}
	if out.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			out.WorkDir = wd
		}
	}
	if out.Interpreter == "" {
		out.Interpreter = defaultInterpreter()
	}
	if out.IdleSuicideSeconds <= 0 {
		out.IdleSuicideSeconds = DefaultIdleSuicideSeconds
	}
	if out.CheckIntervalSeconds <= 0 {
		out.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	}
	return out
}

// Check performs quick, non-blocking validation, meant to catch configuration
// errors before a start is submitted off-thread. It deliberately does not
// stat the file system.
func (p Params) Check() error {
	if p.RootDir == "" {
		return fmt.Errorf("launch: no ycmd root directory has been set")
	}
	if p.Normalized().SettingsPath == "" {
		return fmt.Errorf("launch: no ycmd default settings path has been set")
	}
	return nil
}

// ModuleDir is the directory passed to the interpreter to run the backend.
func (p Params) ModuleDir() string {
	return filepath.Join(p.RootDir, "ycmd")
}

// Args builds the backend command line for the given listen address and
// options file. The caller is responsible for having written the options
// file first.
func (p Params) Args(host string, port int, optionsFile string) []string {
	n := p.Normalized()
	args := []string{
		n.ModuleDir(),
		"--host=" + host,
		"--port=" + strconv.Itoa(port),
		"--idle_suicide_seconds=" + strconv.Itoa(n.IdleSuicideSeconds),
		"--check_interval_seconds=" + strconv.Itoa(n.CheckIntervalSeconds),
		"--options_file=" + optionsFile,
	}
	if n.LogLevel != "" {
		args = append(args, "--log="+n.LogLevel)
		if n.StdoutLogPath != "" && n.StderrLogPath != "" {
			args = append(args,
				"--stdout="+n.StdoutLogPath,
				"--stderr="+n.StderrLogPath,
			)
			if n.KeepLogFiles {
				args = append(args, "--keep_logfiles")
			}
		}
	}
	return args
}

func defaultInterpreter() string {
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "python"
}

// FreePort asks the OS for an unused TCP port on host and returns it. The
// listener is closed before returning, so there is a small window in which
// another process could claim the port; ycmd's own startup fails loudly in
// that case and the manager treats the server as stale.
func FreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("launch: allocate port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}
