package process

import (
	"bytes"
	"sync"
)

// DefaultSpoolSize bounds how much child output a Spool keeps in memory.
const DefaultSpoolSize = 2048

// Spool is a bounded in-memory capture of a child's output stream. Once the
// limit is reached further writes are counted but discarded; the spool exists
// for post-mortem diagnostics, not full log retention.
type Spool struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	max     int
	dropped int
}

// NewSpool creates a spool keeping at most max bytes. max <= 0 uses
// DefaultSpoolSize.
func NewSpool(max int) *Spool {
	if max <= 0 {
		max = DefaultSpoolSize
	}
	return &Spool{max: max}
}

// Write implements io.Writer. It never returns an error; a full spool
// silently drops the overflow.
func (s *Spool) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(p)
	room := s.max - s.buf.Len()
	if room <= 0 {
		s.dropped += n
		return n, nil
	}
	if n > room {
		s.dropped += n - room
		p = p[:room]
	}
	s.buf.Write(p)
	return n, nil
}

// Contents returns everything captured so far.
func (s *Spool) Contents() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Dropped returns how many bytes were discarded after the spool filled up.
func (s *Spool) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
