package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute version: %v", err)
	}
	if !strings.Contains(out.String(), "sycmd "+version) {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	root := buildRoot()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"frobnicate"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestAPIClientStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":0,"servers":[]}`))
	}))
	defer ts.Close()

	var result struct {
		Count int `json:"count"`
	}
	if err := NewAPIClient(ts.URL + "/v1").get("/status", &result); err != nil {
		t.Fatalf("get status: %v", err)
	}
	if result.Count != 0 {
		t.Fatalf("count = %d", result.Count)
	}
}

func TestAPIClientShutdownError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := NewAPIClient(ts.URL + "/v1").post("/shutdown", nil)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestAPIClientUnreachable(t *testing.T) {
	err := NewAPIClient("http://127.0.0.1:1/v1").get("/status", nil)
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected reachability error, got %v", err)
	}
}
