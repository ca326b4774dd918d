// Package embedding turns channel names into vectors via the VoyageAI API
// so that consolidated channels can be searched by meaning.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/models"
)

const (
	defaultBaseURL     = "https://api.voyageai.com/v1"
	defaultModel       = "voyage-3-lite"
	defaultBatchSize   = 128
	defaultHTTPTimeout = 30 * time.Second

	// Dimensions is the vector size produced by voyage-3-lite and stored in
	// channels.embedding.
	Dimensions = 512

	InputDocument = "document"
	InputQuery    = "query"
)

// Client is a lightweight VoyageAI embeddings HTTP client.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for batch progress.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l.Named("embedding") }
}

// NewClient creates a VoyageAI embedding client.
// If model is empty, it defaults to "voyage-3-lite".
func NewClient(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = defaultModel
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type voyageErrorResponse struct {
	Detail string `json:"detail"`
}

// Embed calls the VoyageAI API to embed one or more texts in a single request.
// inputType should be InputDocument for stored channels or InputQuery for
// search queries.
func (c *Client) Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	bodyBytes, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var voyageErr voyageErrorResponse
		_ = json.Unmarshal(respBody, &voyageErr)
		return nil, fmt.Errorf("voyage API %d: %s", resp.StatusCode, voyageErr.Detail)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// The API returns embeddings indexed, not necessarily in order.
	embeddings := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("voyage API: no embedding for input %d", i)
		}
	}
	return embeddings, nil
}

// EmbedBatch splits texts into batches of batchSize and calls Embed for each
// batch. Results are returned in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, inputType string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	totalBatches := (len(texts) + batchSize - 1) / batchSize

	all := make([][]float32, 0, len(texts))
	for i, n := 0, 1; i < len(texts); i, n = i+batchSize, n+1 {
		end := min(i+batchSize, len(texts))
		batch, err := c.Embed(ctx, texts[i:end], inputType)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		all = append(all, batch...)
		c.log.Debug("batch embedded", zap.Int("batch", n), zap.Int("of", totalBatches))
	}
	return all, nil
}

// ChannelText is the text embedded for a channel: its name, qualified by the
// group when one is known.
func ChannelText(ch models.ChannelAggregate) string {
	if ch.Group == "" || ch.Group == models.DefaultGroupName {
		return ch.Name
	}
	return ch.Name + " (" + ch.Group + ")"
}
