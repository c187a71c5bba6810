package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadscope/directory/internal/directory"
)

// Client is the tracker's view of the quota service. Implemented over HTTP
// by HTTPClient; tests substitute fakes.
type Client interface {
	Quota(ctx context.Context) (*Status, error)
	Unlock(ctx context.Context, contactIDs []string) (*UnlockResult, error)
	UnlockedContacts(ctx context.Context) ([]directory.Contact, error)
}

// HTTPClient talks to the quota endpoints of a directory API server on
// behalf of one authenticated user. A new client must be constructed when
// the authenticated user changes.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, accessToken string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   accessToken,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Quota(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/quota", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) Unlock(ctx context.Context, contactIDs []string) (*UnlockResult, error) {
	req := UnlockRequest{ContactIDs: contactIDs}
	var result UnlockResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/quota/unlock", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnlockedContacts fetches the resolved records for the current window's
// unlocked IDs.
func (c *HTTPClient) UnlockedContacts(ctx context.Context) ([]directory.Contact, error) {
	var contacts []directory.Contact
	if err := c.do(ctx, http.MethodGet, "/api/v1/quota/contacts", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// The server wraps payloads in a {data, error} envelope.
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		msg := envelope.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, msg)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding payload from %s: %w", path, err)
		}
	}
	return nil
}
