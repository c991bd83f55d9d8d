package provider

import (
	"fmt"
	"io"
	"net/http"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
)

// defaultHTTPClient is the fallback used when an adapter has no client
// of its own; each adapter instance keeps its own client so tests can
// point it at an httptest.Server.
var defaultHTTPClient = &http.Client{}

// doRequest issues req and classifies the outcome for withRetry:
// connection failures, 429s and 5xx responses are retryable; any
// other non-2xx status is a permanent provider error.
func doRequest(client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, wuhuerr.Retryable(wuhuerr.Transport, err, "provider request failed")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, wuhuerr.Retryable(wuhuerr.Provider, fmt.Errorf("status %d: %s", resp.StatusCode, body), "provider returned a transient error")
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, wuhuerr.New(wuhuerr.Provider, fmt.Sprintf("status %d: %s", resp.StatusCode, body))
	}

	return resp, nil
}
