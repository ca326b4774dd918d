// Package catalog is an HTTP client for the remote channel catalog
// (Dispatcharr-compatible API) that consolidated channels are synced into.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// ErrUnauthorized is returned when the catalog rejects the credentials or token.
var ErrUnauthorized = errors.New("catalog: unauthorized")

// APIError is a non-2xx response other than 401.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("catalog: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Tokens is the JWT pair returned by Login.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type M3UAccount struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ServerURL string `json:"server_url,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Profile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Stream struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Logo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Channel struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	TvgID string `json:"tvg_id,omitempty"`
}

// ChannelRequest is the body of CreateChannel. Zero-valued optional fields
// are omitted.
type ChannelRequest struct {
	Name      string  `json:"name"`
	StreamIDs []int64 `json:"streams"`
	TvgID     string  `json:"tvg_id,omitempty"`
	LogoID    *int64  `json:"logo_id,omitempty"`
	GroupID   *int64  `json:"channel_group_id,omitempty"`
}

// Client talks to the catalog API. It is not safe to call Login concurrently
// with other methods.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l.Named("catalog") }
}

// New returns a client for the catalog at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Login exchanges credentials for tokens and uses the access token for
// subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) (Tokens, error) {
	var t Tokens
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/accounts/token/", body, &t); err != nil {
		return Tokens{}, fmt.Errorf("login: %w", err)
	}
	c.token = t.Access
	return t, nil
}

func (c *Client) ListM3UAccounts(ctx context.Context) ([]M3UAccount, error) {
	return list[M3UAccount](ctx, c, "/api/m3u/accounts/")
}

func (c *Client) ListProfiles(ctx context.Context) ([]Profile, error) {
	return list[Profile](ctx, c, "/api/channels/profiles/")
}

func (c *Client) CreateProfile(ctx context.Context, name string) (Profile, error) {
	var p Profile
	err := c.do(ctx, http.MethodPost, "/api/channels/profiles/", map[string]string{"name": name}, &p)
	return p, err
}

// CreateStream registers a custom stream URL.
func (c *Client) CreateStream(ctx context.Context, url, name string) (Stream, error) {
	var s Stream
	body := map[string]any{"name": name, "url": url, "is_custom": true}
	err := c.do(ctx, http.MethodPost, "/api/channels/streams/", body, &s)
	return s, err
}

func (c *Client) CreateLogo(ctx context.Context, name, url string) (Logo, error) {
	var l Logo
	err := c.do(ctx, http.MethodPost, "/api/channels/logos/", map[string]string{"name": name, "url": url}, &l)
	return l, err
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	return list[Group](ctx, c, "/api/channels/groups/")
}

func (c *Client) CreateGroup(ctx context.Context, name string) (Group, error) {
	var g Group
	err := c.do(ctx, http.MethodPost, "/api/channels/groups/", map[string]string{"name": name}, &g)
	return g, err
}

func (c *Client) CreateChannel(ctx context.Context, req ChannelRequest) (Channel, error) {
	if req.StreamIDs == nil {
		req.StreamIDs = []int64{}
	}
	var ch Channel
	err := c.do(ctx, http.MethodPost, "/api/channels/channels/", req, &ch)
	return ch, err
}

// AssignToProfile enables a channel in a profile.
func (c *Client) AssignToProfile(ctx context.Context, profileID, channelID int64) error {
	path := fmt.Sprintf("/api/channels/profiles/%d/channels/%d/", profileID, channelID)
	return c.do(ctx, http.MethodPatch, path, map[string]bool{"enabled": true}, nil)
}

// MatchEPG asks the catalog to auto-match EPG data for the given channels.
func (c *Client) MatchEPG(ctx context.Context, channelIDs []int64) error {
	return c.do(ctx, http.MethodPost, "/api/channels/channels/match-epg/", map[string][]int64{"channel_ids": channelIDs}, nil)
}

// list decodes either a bare JSON array or a paginated {"results": [...]} body.
func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return page.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("catalog: marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("catalog: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return nil
}
