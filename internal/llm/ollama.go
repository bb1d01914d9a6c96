// Package llm is a client for an Ollama-compatible chat API used to rank
// selector candidates.
package llm

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

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/config"
)

// DefaultTimeout bounds a ranking call when llm.timeout is not positive.
const DefaultTimeout = 12 * time.Second

const systemPrompt = "You are a strict selector ranking assistant. Return valid JSON only. Prefer robust, unique, user-facing selectors."

// RankCandidate is one selector offered to the model.
type RankCandidate struct {
	ID          string   `json:"id"`
	Value       string   `json:"value"`
	Kind        string   `json:"kind"`
	Score       float64  `json:"score"`
	ReasonCodes []string `json:"reasonCodes"`
}

type RankRequest struct {
	StepAction         string          `json:"stepAction"`
	CurrentCandidateID string          `json:"currentCandidateId"`
	Candidates         []RankCandidate `json:"candidates"`
	SnapshotExcerpt    string          `json:"snapshotExcerpt,omitempty"`
}

// RankResponse is the structured answer the model must return.
type RankResponse struct {
	SelectedCandidateID string   `json:"selectedCandidateId" jsonschema:"minLength=1"`
	Confidence          float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Rationale           string   `json:"rationale" jsonschema:"minLength=1"`
	ReasonCodes         []string `json:"reasonCodes,omitempty"`
}

// Validate applies the same constraints as the response schema.
func (r RankResponse) Validate() error {
	switch {
	case strings.TrimSpace(r.SelectedCandidateID) == "":
		return errors.New("selectedCandidateId is empty")
	case r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("confidence %v is outside [0,1]", r.Confidence)
	case strings.TrimSpace(r.Rationale) == "":
		return errors.New("rationale is empty")
	}
	return nil
}

// ResponseSchema is the JSON schema sent as the chat "format" so the model
// answers with a RankResponse.
func ResponseSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&RankResponse{})
	schema.Version = ""
	return schema
}

type Client struct {
	httpClient      *http.Client
	endpoint        string
	model           string
	temperature     float64
	maxOutputTokens int
	timeout         time.Duration
	logger          *zap.Logger
}

func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient:      &http.Client{},
		endpoint:        ChatEndpoint(cfg.BaseURL),
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeout:         timeout,
		logger:          logger.Named("llm"),
	}
}

// ChatEndpoint returns the chat URL for a base URL with or without a
// trailing slash.
func ChatEndpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/chat"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string             `json:"model"`
	Stream   bool               `json:"stream"`
	Format   *jsonschema.Schema `json:"format"`
	Options  map[string]any     `json:"options"`
	Messages []chatMessage      `json:"messages"`
}

// Rank asks the model to pick a candidate. The call is bounded by the
// configured timeout regardless of ctx.
func (c *Client) Rank(ctx context.Context, req RankRequest) (*RankResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ranking input: %w", err)
	}
	body, err := json.Marshal(chatRequest{
		Model:  c.model,
		Stream: false,
		Format: ResponseSchema(),
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxOutputTokens,
		},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(input)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ranking request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking response: %w", err)
	}
	c.logger.Debug("Ranking response received",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ranking request failed: %s", resp.Status)
	}

	content := gjson.GetBytes(data, "message.content")
	if content.Type != gjson.String || strings.TrimSpace(content.Str) == "" {
		return nil, errors.New("model returned an empty ranking response")
	}

	var out RankResponse
	if err := json.Unmarshal([]byte(content.Str), &out); err != nil {
		return nil, errors.New("model returned non-JSON ranking output")
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("ranking output failed validation: %w", err)
	}
	return &out, nil
}
