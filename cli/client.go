package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/binhbb2204/mangashelf/cli/config"
)

const sessionCookieName = "PASSID"

// APIError is the structured error body returned by the server.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Status     string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

type apiClient struct {
	baseURL string
	session string
	http    *http.Client
}

// newClient builds a client from the saved configuration.
func newClient() (*apiClient, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrNotInitialized) {
			return nil, nil, fmt.Errorf("%w, run: mangashelf init", err)
		}
		return nil, nil, err
	}
	return &apiClient{
		baseURL: cfg.Server.URL,
		session: cfg.User.Session,
		http:    &http.Client{Timeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second},
	}, cfg, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: c.session})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server connection error: %w", err)
	}
	return resp, nil
}

// call sends in as JSON (when non-nil) and decodes the answer into out.
func (c *apiClient) call(ctx context.Context, method, path string, in, out interface{}) (*http.Response, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return resp, decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{}
		if json.Unmarshal(data, apiErr) != nil || apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode
			apiErr.Status = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sessionFrom returns the session cookie set by resp, if any.
func sessionFrom(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName && c.MaxAge >= 0 {
			return c.Value
		}
	}
	return ""
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
