package generator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// AnthropicDriver talks to the Anthropic Messages API.
type AnthropicDriver struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewAnthropic creates a driver against the public API.
func NewAnthropic(apiKey, model string) *AnthropicDriver {
	return &AnthropicDriver{
		endpoint: "https://api.anthropic.com",
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *AnthropicDriver) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string           `json:"model"`
	System    string           `json:"system,omitempty"`
	Messages  []models.Message `json:"messages"`
	MaxTokens int              `json:"max_tokens"`
	Stream    bool             `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Generate performs a blocking message call.
func (d *AnthropicDriver) Generate(ctx context.Context, req contracts.GenerateRequest) (*contracts.GenerateResult, error) {
	resp, err := d.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	var content strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	return &contracts.GenerateResult{
		Text:         content.String(),
		Driver:       d.Name(),
		Model:        d.modelFor(req),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

// Stream reads the SSE event stream, forwarding text deltas.
func (d *AnthropicDriver) Stream(ctx context.Context, req contracts.GenerateRequest, sink contracts.StreamSink) (*contracts.GenerateResult, error) {
	resp, err := d.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &contracts.GenerateResult{Driver: d.Name(), Model: d.modelFor(req)}
	var full strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				full.WriteString(ev.Delta.Text)
				if err := sink(ev.Delta.Text); err != nil {
					return nil, err
				}
			}
		case "message_stop":
			// terminal event
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: read stream: %w", err)
	}

	result.Text = full.String()
	return result, nil
}

func (d *AnthropicDriver) do(ctx context.Context, req contracts.GenerateRequest, stream bool) (*http.Response, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, _ := json.Marshal(anthropicRequest{
		Model:     d.modelFor(req),
		System:    req.System,
		Messages:  req.Messages,
		MaxTokens: maxTokens,
		Stream:    stream,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", d.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func (d *AnthropicDriver) modelFor(req contracts.GenerateRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return d.model
}
