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

// OpenAIDriver talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIDriver struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewOpenAI creates a driver. endpoint defaults to the public API.
func NewOpenAI(endpoint, apiKey, model string) *OpenAIDriver {
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	return &OpenAIDriver{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *OpenAIDriver) Name() string { return "openai" }

type openAIChatRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Stream      bool             `json:"stream,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate performs a blocking chat completion.
func (d *OpenAIDriver) Generate(ctx context.Context, req contracts.GenerateRequest) (*contracts.GenerateResult, error) {
	resp, err := d.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	content := ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	return &contracts.GenerateResult{
		Text:         content,
		Driver:       d.Name(),
		Model:        d.modelFor(req),
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

// Stream reads the SSE stream, forwarding each delta.
func (d *OpenAIDriver) Stream(ctx context.Context, req contracts.GenerateRequest, sink contracts.StreamSink) (*contracts.GenerateResult, error) {
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
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk openAIChatResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("openai: decode chunk: %w", err)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			full.WriteString(delta)
			if err := sink(delta); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("openai: read stream: %w", err)
	}

	result.Text = full.String()
	return result, nil
}

func (d *OpenAIDriver) do(ctx context.Context, req contracts.GenerateRequest, stream bool) (*http.Response, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("openai: api key not configured")
	}

	msgs := req.Messages
	if req.System != "" {
		msgs = append([]models.Message{{Role: models.RoleSystem, Content: req.System}}, msgs...)
	}

	body, _ := json.Marshal(openAIChatRequest{
		Model:       d.modelFor(req),
		Messages:    msgs,
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func (d *OpenAIDriver) modelFor(req contracts.GenerateRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return d.model
}
