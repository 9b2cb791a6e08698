// Package gateway talks to the spreadsheet script endpoint that backs the
// inventory.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
)

// ErrHTMLResponse is returned when the endpoint answers with a web page,
// usually a login or permission screen, instead of JSON.
var ErrHTMLResponse = errors.New("remote returned HTML instead of JSON")

// RemoteError is an error reported by the script itself in the error field.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}

type Client struct {
	url    string
	apiKey string
	client *http.Client
	now    func() time.Time
}

func NewClient(scriptURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    NormalizeScriptURL(scriptURL),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

var domainMacroPath = regexp.MustCompile(`/a/macros/[^/]+/s/`)

// NormalizeScriptURL rewrites domain-scoped script URLs to the public form.
func NormalizeScriptURL(raw string) string {
	return domainMacroPath.ReplaceAllString(strings.TrimSpace(raw), "/macros/s/")
}

// Fetch reads the full inventory, users and log feed.
func (c *Client) Fetch(ctx context.Context) (*domain.Feed, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid script url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	q.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	body = bytes.TrimPrefix(body, utf8BOM)

	if looksLikeHTML(body) {
		return nil, ErrHTMLResponse
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch feed: status %d", resp.StatusCode)
	}

	var f domain.Feed
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	if f.Error != "" {
		return nil, &RemoteError{Message: f.Error}
	}

	return &f, nil
}

type writeRequest struct {
	Key       string                `json:"key"`
	Action    domain.CommandAction  `json:"action"`
	CommandID string                `json:"commandId"`
	Updates   []domain.StatusUpdate `json:"updates,omitempty"`
	LogData   *domain.SessionLog    `json:"logData,omitempty"`
}

// Send posts a command. The response body is ignored.
func (c *Client) Send(ctx context.Context, cmd domain.Command) error {
	data, err := json.Marshal(writeRequest{
		Key:       c.apiKey,
		Action:    cmd.Action,
		CommandID: cmd.ID,
		Updates:   cmd.Updates,
		LogData:   cmd.LogData,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Action, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to send %s: status %d", cmd.Action, resp.StatusCode)
	}

	return nil
}

var utf8BOM = []byte("\xEF\xBB\xBF")

func looksLikeHTML(body []byte) bool {
	body = bytes.TrimPrefix(body, utf8BOM)
	head := bytes.TrimSpace(body)
	if len(head) > 64 {
		head = head[:64]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}
