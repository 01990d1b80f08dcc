// Package websearch looks up public context through the DuckDuckGo
// Instant Answer API. No API key required.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storechat/storechat/pkg/models"
)

const defaultEndpoint = "https://api.duckduckgo.com/"

// Client implements contracts.WebSearcher.
type Client struct {
	endpoint string
	client   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint, mainly for tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

func New(opts ...Option) *Client {
	c := &Client{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	Abstract      string         `json:"Abstract"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

// Search queries the instant-answer API: the abstract first if present,
// then related topics, capped at limit.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.WebResult, error) {
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned %d: %s", resp.StatusCode, string(body))
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var results []models.WebResult
	if answer.Abstract != "" {
		title := answer.Heading
		if title == "" {
			title = "Instant Answer"
		}
		results = append(results, models.WebResult{
			Title:   title,
			URL:     answer.AbstractURL,
			Snippet: answer.Abstract,
		})
	}
	for _, topic := range answer.RelatedTopics {
		if len(results) >= limit {
			break
		}
		if topic.Text == "" {
			continue
		}
		results = append(results, models.WebResult{
			Title:   topicTitle(topic.FirstURL),
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	return results, nil
}

// topicTitle derives a readable title from a topic URL's last path segment.
func topicTitle(u string) string {
	if u == "" {
		return "Related Topic"
	}
	parts := strings.Split(strings.TrimSuffix(u, "/"), "/")
	last := parts[len(parts)-1]
	return strings.ReplaceAll(last, "_", " ")
}
