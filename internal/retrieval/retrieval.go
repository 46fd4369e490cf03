// Package retrieval fetches knowledge-base passages for a customer question.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Document is one retrieved passage.
type Document struct {
	ID       string         `json:"document_id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retriever returns up to k passages relevant to query. An empty result means no
// relevant context and is not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}

// Noop never finds context. Used when no retrieval service is configured.
type Noop struct{}

// Retrieve returns nothing.
func (Noop) Retrieve(context.Context, string, int) ([]Document, error) {
	return nil, nil
}

type queryRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

type queryResult struct {
	DocumentID  string         `json:"document_id"`
	Score       float64        `json:"score"`
	Text        string         `json:"text"`
	TextPreview string         `json:"text_preview"`
	Metadata    map[string]any `json:"metadata"`
}

type queryResponse struct {
	Count   int           `json:"count"`
	Results []queryResult `json:"results"`
}

// Client queries a vector store service over HTTP.
type Client struct {
	baseURL    string
	httpClient *resty.Client
}

// NewClient creates a client for the service at baseURL. It returns nil for an empty URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "support-desk/1.0").
		SetTimeout(timeout)

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// IsEnabled reports whether the client has a target.
func (c *Client) IsEnabled() bool {
	return c != nil && c.baseURL != ""
}

// Retrieve posts the query to /query.
func (c *Client) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("retrieval client is not configured")
	}

	var resp queryResponse
	httpResp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(queryRequest{Text: query, TopK: k}).
		SetResult(&resp).
		Post("/query")
	if err != nil {
		return nil, fmt.Errorf("retrieval query request failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("retrieval query error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}

	docs := make([]Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		text := r.Text
		if text == "" {
			text = r.TextPreview
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{
			ID:       r.DocumentID,
			Score:    r.Score,
			Text:     text,
			Metadata: r.Metadata,
		})
		if k > 0 && len(docs) == k {
			break
		}
	}
	return docs, nil
}

// JoinText concatenates passage texts into one context block.
func JoinText(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, strings.TrimSpace(d.Text))
	}
	return strings.Join(parts, "\n\n")
}
