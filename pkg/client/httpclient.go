package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HttpClient is a thin JSON client for the LetsPlay HTTP API, used by the
// integration suite and by operators' scripts.
type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Headers:    map[string]string{},
	}
}

// WithHeader returns a copy of c that also sends key on every request.
func (c *HttpClient) WithHeader(key, value string) *HttpClient {
	clone := *c
	clone.Headers = make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		clone.Headers[k] = v
	}
	clone.Headers[key] = value
	return &clone
}

// Response keeps the drained body next to the original response.
type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// DecodeData unwraps the {"data": ...} envelope of a success response.
func (r *Response) DecodeData(target any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := r.DecodeJSON(&env); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("response has no data (status %d)", r.StatusCode)
	}
	return json.Unmarshal(env.Data, target)
}

func (r *Response) String() string {
	if r == nil || r.Response == nil {
		return "<nil response>"
	}
	return fmt.Sprintf("%s %s -> %d: %s", r.Request.Method, r.Request.URL.Path, r.StatusCode, r.Body)
}

func (c *HttpClient) GET(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.send(ctx, http.MethodGet, path, nil, headers)
}

func (c *HttpClient) POST(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
	}
	return c.send(ctx, http.MethodPost, path, payload, headers)
}

func (c *HttpClient) send(ctx context.Context, method, path string, payload []byte, headers map[string]string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, set := range []map[string]string{c.Headers, headers} {
		for k, v := range set {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	return &Response{Response: resp, Body: data}, nil
}

// WaitForHealthy polls /health until it answers 200 or maxWait elapses.
func (c *HttpClient) WaitForHealthy(ctx context.Context, maxWait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		if resp, err := c.GET(ctx, "/health", nil); err == nil && resp.StatusCode == http.StatusOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("service did not become healthy within %v", maxWait)
		case <-tick.C:
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// GetErrorMessage extracts the message of an error response, falling back to
// its code.
func GetErrorMessage(resp *Response) string {
	var body errorBody
	if err := resp.DecodeJSON(&body); err != nil {
		return fmt.Sprintf("failed to unmarshal error: %v", err)
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Code
}

func GetErrorCode(resp *Response) string {
	var body errorBody
	_ = resp.DecodeJSON(&body)
	return body.Code
}
