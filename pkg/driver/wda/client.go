// Package wda talks to the WebDriverAgent port exposed by the XCUITest
// backend directly, without going through an Appium session.
package wda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Kind names a session-less endpoint.
type Kind string

const (
	KindStatus     Kind = "status"
	KindScreenshot Kind = "screenshot"
	KindSource     Kind = "source"
)

// ParseKind validates a session-less check name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindStatus, KindScreenshot, KindSource:
		return k, nil
	default:
		return "", fmt.Errorf("unknown session-less check %q", s)
	}
}

// Client is an HTTP client for WebDriverAgent.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new WDA client.
func NewClient(port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://localhost:%d", port),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// NewClientWithURL points the client at an arbitrary base URL.
func NewClientWithURL(baseURL string) *Client {
	c := NewClient(0)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Status returns WDA status.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/status")
}

// Screenshot fetches a screenshot without a session.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, "/screenshot")
	if err != nil {
		return nil, err
	}

	if value, ok := resp["value"].(string); ok {
		return base64.StdEncoding.DecodeString(value)
	}
	return nil, fmt.Errorf("invalid screenshot response")
}

// Source fetches the UI hierarchy without a session.
func (c *Client) Source(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, "/source")
	if err != nil {
		return "", err
	}

	if value, ok := resp["value"].(string); ok {
		return value, nil
	}
	return "", fmt.Errorf("invalid source response")
}

// Fetch returns the payload of the given kind, as raw bytes.
func (c *Client) Fetch(ctx context.Context, kind Kind) ([]byte, error) {
	switch kind {
	case KindScreenshot:
		return c.Screenshot(ctx)
	case KindSource:
		src, err := c.Source(ctx)
		return []byte(src), err
	case KindStatus:
		resp, err := c.Status(ctx)
		if err != nil {
			return nil, err
		}
		if resp["value"] == nil {
			return nil, nil
		}
		return json.Marshal(resp["value"])
	default:
		return nil, fmt.Errorf("unknown session-less check %q", kind)
	}
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.parseResponse(resp)
}

func (c *Client) parseResponse(resp *http.Response) (map[string]interface{}, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}

	// Check for WDA error
	if value, ok := result["value"].(map[string]interface{}); ok {
		if errMsg, ok := value["error"].(string); ok {
			message := errMsg
			if msg, ok := value["message"].(string); ok {
				message = msg
			}
			return nil, fmt.Errorf("WDA error: %s", message)
		}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("WDA error: %s", resp.Status)
	}

	return result, nil
}
