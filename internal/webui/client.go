// Package webui is a thin client for the WebUI host's REST API.
//
// Calls never fail with a Go error: every response is reduced to an HTTP
// status and a decoded JSON body, and transport failures surface as status 0
// with a {"message": ...} body.
package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/Dmi3yy/webui-pipes/internal/auth"
	"github.com/Dmi3yy/webui-pipes/internal/domain"
)

const defaultBaseURL = "http://localhost:8080"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the host API root (WEBUI_API_URL).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(tokens *auth.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *auth.TokenSource
	logger     *slog.Logger
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends one request to endpoint (a path starting with "/") on behalf of
// user. body is JSON-encoded when non-nil.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, user *domain.User) (int, any) {
	token, err := c.tokens.TokenFor(user)
	if err != nil {
		return 0, map[string]any{"message": err.Error()}
	}
	status, data, err := c.do(ctx, method, c.baseURL+endpoint, nil, body, token)
	if err != nil {
		c.logger.Warn("webui request failed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return 0, map[string]any{"message": err.Error()}
	}
	return status, data
}

func (c *Client) do(ctx context.Context, method, target string, query url.Values, body any, token string) (int, any, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, decodeBody(raw), nil
}

// decodeBody parses a response body as JSON. An empty body yields {} and a
// non-JSON body yields {"message": text}.
func decodeBody(raw []byte) any {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return map[string]any{}
	}
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return map[string]any{"message": text}
	}
	return data
}

// CreateKnowledge posts a new knowledge base.
func (c *Client) CreateKnowledge(ctx context.Context, name, description string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodPost, "/api/v1/knowledge/create",
		map[string]any{"name": name, "description": description}, user)
}

func (c *Client) ListKnowledge(ctx context.Context, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodGet, "/api/v1/knowledge/list", nil, user)
}

func (c *Client) GetKnowledge(ctx context.Context, id string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodGet, "/api/v1/knowledge/"+url.PathEscape(id), nil, user)
}

func (c *Client) DeleteKnowledge(ctx context.Context, id string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodDelete, "/api/v1/knowledge/"+url.PathEscape(id)+"/delete", nil, user)
}

func (c *Client) AddFileToKnowledge(ctx context.Context, kbID, fileID string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodPost, "/api/v1/knowledge/"+url.PathEscape(kbID)+"/file/add",
		map[string]any{"file_id": fileID}, user)
}

func (c *Client) RemoveFileFromKnowledge(ctx context.Context, kbID, fileID string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodPost, "/api/v1/knowledge/"+url.PathEscape(kbID)+"/file/remove",
		map[string]any{"file_id": fileID}, user)
}

func (c *Client) ListFiles(ctx context.Context, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodGet, "/api/v1/files/", nil, user)
}

func (c *Client) GetFile(ctx context.Context, id string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodGet, "/api/v1/files/"+url.PathEscape(id), nil, user)
}

func (c *Client) DeleteFile(ctx context.Context, id string, user *domain.User) (int, any) {
	return c.Do(ctx, http.MethodDelete, "/api/v1/files/"+url.PathEscape(id), nil, user)
}

// TokenFor returns the bearer token the client would send for user.
func (c *Client) TokenFor(user *domain.User) (string, error) {
	return c.tokens.TokenFor(user)
}

// FilesForSession lists the files attached to a chat session at filesURL,
// ordered by created_at, authenticating with token when non-empty. Unlike
// Do it fails on transport errors and non-2xx answers.
func (c *Client) FilesForSession(ctx context.Context, filesURL, sessionID, token string) ([]map[string]any, error) {
	status, data, err := c.do(ctx, http.MethodGet, filesURL,
		url.Values{"session_id": {sessionID}}, nil, token)
	if err != nil {
		return nil, fmt.Errorf("fetch session files: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fetch session files: status %d", status)
	}

	files := ObjectList(data)
	sort.SliceStable(files, func(i, j int) bool {
		return createdBefore(files[i]["created_at"], files[j]["created_at"])
	})
	return files, nil
}

// createdBefore orders numeric timestamps numerically and anything else by
// its text form. Missing values sort first.
func createdBefore(a, b any) bool {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		return fa < fb
	}
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// ObjectList returns the JSON objects of a decoded list, skipping anything
// else. A non-list yields nil.
func ObjectList(data any) []map[string]any {
	items, ok := data.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
