package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sublime-ycmd/sublime-ycmd/internal/config"
)

// APIClient talks to a running daemon's debug API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	if baseURL == "" {
		baseURL = "http://" + config.DefaultListen + "/v1"
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) get(path string, out interface{}) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s - start it first with 'sycmd serve'", c.baseURL)
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func (c *APIClient) post(path string, out interface{}) error {
	resp, err := c.client.Post(c.baseURL+path, "", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s - start it first with 'sycmd serve'", c.baseURL)
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s: %s", resp.Status, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func runStatus(cf *ClientFlags) error {
	var result map[string]interface{}
	if err := NewAPIClient(cf.APIUrl).get("/status", &result); err != nil {
		return err
	}
	return printJSON(result)
}

func runShutdown(cf *ClientFlags, hard bool) error {
	path := "/shutdown"
	if hard {
		path += "?hard=1"
	}
	var result map[string]interface{}
	if err := NewAPIClient(cf.APIUrl).post(path, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
