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

// OllamaDriver talks to a local Ollama daemon over /api/chat.
type OllamaDriver struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllama creates a driver for the given endpoint and default model.
func NewOllama(endpoint, model string) *OllamaDriver {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaDriver{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *OllamaDriver) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  map[string]any   `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
}

// Generate performs a blocking chat completion.
func (d *OllamaDriver) Generate(ctx context.Context, req contracts.GenerateRequest) (*contracts.GenerateResult, error) {
	resp, err := d.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	return &contracts.GenerateResult{
		Text:         out.Message.Content,
		Driver:       d.Name(),
		Model:        d.modelFor(req),
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}, nil
}

// Stream reads the newline-delimited chunk stream, forwarding each delta.
func (d *OllamaDriver) Stream(ctx context.Context, req contracts.GenerateRequest, sink contracts.StreamSink) (*contracts.GenerateResult, error) {
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
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("ollama: decode chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if err := sink(chunk.Message.Content); err != nil {
				return nil, err
			}
		}
		if chunk.Done {
			result.InputTokens = chunk.PromptEvalCount
			result.OutputTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ollama: read stream: %w", err)
	}

	result.Text = full.String()
	return result, nil
}

func (d *OllamaDriver) do(ctx context.Context, req contracts.GenerateRequest, stream bool) (*http.Response, error) {
	msgs := req.Messages
	if req.System != "" {
		msgs = append([]models.Message{{Role: models.RoleSystem, Content: req.System}}, msgs...)
	}

	opts := map[string]any{}
	if req.Temperature >= 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}

	body, _ := json.Marshal(ollamaChatRequest{
		Model:    d.modelFor(req),
		Messages: msgs,
		Stream:   stream,
		Options:  opts,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func (d *OllamaDriver) modelFor(req contracts.GenerateRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return d.model
}
