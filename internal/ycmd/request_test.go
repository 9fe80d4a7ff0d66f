package ycmd

import (
	"encoding/json"
	"testing"
)

func decodeBody(t *testing.T, rp *RequestParameters) map[string]interface{} {
	t.Helper()
	raw, err := rp.Body()
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return m
}

func TestRequestParametersBodyDefaults(t *testing.T) {
	rp := &RequestParameters{FilePath: "/tmp/file.go", FileContents: "package main"}
	m := decodeBody(t, rp)

	if m["filepath"] != "/tmp/file.go" {
		t.Fatalf("filepath = %v", m["filepath"])
	}
	if m["line_num"] != float64(1) || m["column_num"] != float64(1) {
		t.Fatalf("expected 1-based defaults, got line=%v col=%v", m["line_num"], m["column_num"])
	}
	if _, ok := m["force_semantic"]; ok {
		t.Fatalf("force_semantic should be omitted when false")
	}
	fd, ok := m["file_data"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing file_data")
	}
	entry, ok := fd["/tmp/file.go"].(map[string]interface{})
	if !ok {
		t.Fatalf("file_data not keyed by path: %v", fd)
	}
	if entry["contents"] != "package main" {
		t.Fatalf("contents = %v", entry["contents"])
	}
	if ft, ok := entry["filetypes"].([]interface{}); !ok || len(ft) != 0 {
		t.Fatalf("filetypes should be an empty array, got %v", entry["filetypes"])
	}
}

func TestRequestParametersBodyRequiresFilePath(t *testing.T) {
	rp := &RequestParameters{FileContents: "x"}
	if _, err := rp.Body(); err == nil {
		t.Fatalf("expected error for missing file path")
	}
}

func TestRequestParametersForceSemantic(t *testing.T) {
	rp := &RequestParameters{FilePath: "/f", ForceSemantic: true}
	m := decodeBody(t, rp)
	if m["force_semantic"] != true {
		t.Fatalf("force_semantic = %v", m["force_semantic"])
	}
}

func TestRequestParametersExtraOverrides(t *testing.T) {
	rp := &RequestParameters{FilePath: "/f", LineNum: 10}
	rp.SetExtra("event_name", "BufferVisit")
	rp.SetExtra("line_num", 99)
	m := decodeBody(t, rp)
	if m["event_name"] != "BufferVisit" {
		t.Fatalf("event_name = %v", m["event_name"])
	}
	if m["line_num"] != float64(99) {
		t.Fatalf("extra should override standard field, got %v", m["line_num"])
	}
}

func TestRequestParametersCopyIsIndependent(t *testing.T) {
	rp := &RequestParameters{FilePath: "/f", FileTypes: []string{"go"}}
	rp.SetExtra("a", 1)

	cp := rp.Copy()
	cp.SetExtra("b", 2)
	cp.FileTypes[0] = "python"

	if _, ok := rp.extra["b"]; ok {
		t.Fatalf("copy's extra leaked into original")
	}
	if rp.FileTypes[0] != "go" {
		t.Fatalf("copy's filetypes alias the original")
	}
}

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusNull, StatusStarting, true},
		{StatusStarting, StatusRunning, true},
		{StatusRunning, StatusStopping, true},
		{StatusStopping, StatusStopping, true},
		{StatusRunning, StatusStarting, false},
		{StatusStopping, StatusRunning, false},
		// null is always reachable, any state can self-heal
		{StatusRunning, StatusNull, true},
		{StatusStarting, StatusNull, true},
	}
	for _, tc := range cases {
		valid := validFrom(tc.to)
		got := valid == nil || statusIn(tc.from, valid)
		if got != tc.ok {
			t.Fatalf("transition %v -> %v: expected ok=%v", tc.from, tc.to, tc.ok)
		}
	}
}
