// Package logger holds the broker's slog setup and the rotated file writers
// used to capture backend server output.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// FileConfig describes where captured backend output goes. If StdoutPath or
// StderrPath are empty and Dir is set, files default to
// Dir/<label>.stdout.log and Dir/<label>.stderr.log.
type FileConfig struct {
	Dir        string `mapstructure:"dir"`
	StdoutPath string `mapstructure:"stdout"`
	StderrPath string `mapstructure:"stderr"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Writers returns rotated io.WriteClosers for a backend server's stdout and
// stderr. label is the server's human-readable label (workdir basename); it
// keys the default file names so two projects never share a log file.
func (c FileConfig) Writers(label string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", label))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", label))
	}
	if c.Dir != "" {
		if err := os.MkdirAll(c.Dir, 0o750); err != nil {
			return nil, nil, err
		}
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = c.newRotated(stdout)
	}
	if stderr != "" {
		errW = c.newRotated(stderr)
	}
	return outW, errW, nil
}

func (c FileConfig) newRotated(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a config string to a slog.Level. Unknown strings fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the broker's slog.Logger writing to w. When color is true the
// colorized text handler is used (intended for interactive CLI sessions).
func New(w io.Writer, level slog.Level, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if color {
		return slog.New(NewColorTextHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
