// Package clients implements the REST clients the core consumes:
// core-metadata (device definitions, profiles, watchers), core-data
// (event ingestion), support-logging (remote log entries), and the ping
// probe used as a readiness barrier during bring-up.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360/devicesdk/config"
)

// apiV1 is the common path prefix of all north-bound v1 endpoints.
const apiV1 = "/api/v1"

// httpTimeout bounds every individual REST call.
const httpTimeout = 10 * time.Second

// statusError reports a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("status %d", e.Status)
}

// rest is the shared transport for all clients.
type rest struct {
	client *http.Client
}

func newREST() *rest {
	return &rest{client: &http.Client{Timeout: httpTimeout}}
}

// baseURL builds http://host:port for an endpoint.
func baseURL(ep config.Endpoint) string {
	return fmt.Sprintf("http://%s:%d", ep.Host, ep.Port)
}

// do issues a request with an optional JSON body and returns the
// response body for 2xx statuses. A nil body sends no payload.
func (r *rest) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return data, nil
}

// doRaw posts a pre-serialized payload with the given content type.
func (r *rest) doRaw(ctx context.Context, method, url, contentType string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return data, nil
}

// isNotFound reports whether err is an HTTP 404.
func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
