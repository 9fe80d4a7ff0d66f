package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestJournalAppendAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = j.Close() }()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{OccurredAt: base, Event: EventStarted, Label: "proj", WorkDir: "/home/u/proj", PID: 101, Port: 9001},
		{OccurredAt: base.Add(time.Minute), Event: EventStopped, Label: "proj", WorkDir: "/home/u/proj", PID: 101, Port: 9001},
	}
	for _, e := range entries {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append(%s): %v", e.Event, err)
		}
	}

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	// newest first
	if got[0].Event != EventStopped || got[1].Event != EventStarted {
		t.Fatalf("wrong order: %s, %s", got[0].Event, got[1].Event)
	}
	if got[1].WorkDir != "/home/u/proj" || got[1].PID != 101 || got[1].Port != 9001 {
		t.Fatalf("unexpected entry: %+v", got[1])
	}
}

func TestJournalOpenDSNPrefix(t *testing.T) {
	j, err := Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Open with prefix: %v", err)
	}
	defer func() { _ = j.Close() }()

	if err := j.Append(Entry{Event: EventEvicted, Label: "x", WorkDir: "/x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Event != EventEvicted {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[0].OccurredAt.IsZero() {
		t.Fatalf("timestamp should have been defaulted")
	}
}

func TestJournalOpenEmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
