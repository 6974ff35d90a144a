package publer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/slickofficials/autoposter/pkg/httpclient"
)

// Package publer is a thin adapter for the Publer scheduling API. It performs
// a single attempt per call and reports the outcome as an explicit Result so
// callers never branch on thrown errors.

const DefaultBaseURL = "https://api.publer.io/v1"

// Result is the outcome of one publish attempt.
type Result struct {
	OK     bool
	Detail string
}

// Client posts content to Publer. Missing credentials short-circuit to a
// failed Result, indistinguishable in shape from a vendor failure.
type Client struct {
	client    *resty.Client
	apiKey    string
	accountID string
	baseURL   string
}

// NewClient builds a Publer client with a bounded request timeout.
func NewClient(apiKey, accountID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		client:    httpclient.NewRestyHTTPClient(timeout),
		apiKey:    strings.TrimSpace(apiKey),
		accountID: strings.TrimSpace(accountID),
		baseURL:   DefaultBaseURL,
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// Publish sends one post to Publer. Single attempt, no retry.
func (c *Client) Publish(ctx context.Context, caption, link, mediaURL string, platforms []string) Result {
	if c.apiKey == "" || c.accountID == "" {
		return Result{OK: false, Detail: "publer credentials missing"}
	}

	content := map[string]any{
		"text": caption,
	}
	if mediaURL != "" {
		content["media"] = []map[string]string{{"url": mediaURL}}
	}
	if len(platforms) > 0 {
		content["networks"] = platforms
	}

	payload := map[string]any{
		"accounts": []string{c.accountID},
		"content":  content,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.baseURL + "/posts")
	if err != nil {
		return Result{OK: false, Detail: fmt.Sprintf("publer request failed: %v", err)}
	}

	if resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated {
		return Result{OK: true, Detail: fmt.Sprintf("status %d", resp.StatusCode())}
	}
	return Result{OK: false, Detail: fmt.Sprintf("publer status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))}
}

func bodySnippet(body []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
