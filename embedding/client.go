package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ClientOptions contains configuration options for the HTTP client.
type ClientOptions struct {
	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Dimensions is the expected embedding dimension; responses with a
	// different dimension are rejected.
	Dimensions int

	// RequestsPerSecond throttles calls to the provider. Zero disables
	// throttling.
	RequestsPerSecond float64

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// DefaultClientOptions contains the default configuration options for the
// HTTP client.
var DefaultClientOptions = ClientOptions{
	Dimensions: 1024,
}

// Client calls a remote embedding service over HTTP. The wire contract is
// a POST of {"texts": [...]} answered by {"embeddings": [[...], ...]}.
type Client struct {
	url     string
	opts    ClientOptions
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the embedding service at url.
func NewClient(url string, optFns ...func(o *ClientOptions)) *Client {
	opts := DefaultClientOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{url: url, opts: opts, http: httpClient, limiter: limiter}
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int { return c.opts.Dimensions }

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch embeds all texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, msg)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrProvider, err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProvider, len(out.Embeddings), len(texts))
	}
	for i, vec := range out.Embeddings {
		if len(vec) != c.opts.Dimensions {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d", ErrProvider, i, len(vec), c.opts.Dimensions)
		}
	}
	return out.Embeddings, nil
}
