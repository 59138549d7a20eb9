package strategy

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

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/signal"
	"github.com/ramihomecare1-commits/Scalper/internal/snapshot"
)

const (
	defaultBaseURL     = "https://api.deepseek.com/v1"
	defaultModel       = "deepseek-chat"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.1
	defaultTimeout     = 30 * time.Second
)

// DeepSeek asks an OpenAI-compatible chat completion endpoint for decisions.
type DeepSeek struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	batch       bool
	client      *http.Client
	log         zerolog.Logger
}

// NewDeepSeek builds the client, filling unset params with defaults.
// A nil Temperature means the default; zero is sent as is.
func NewDeepSeek(p Params, log zerolog.Logger) *DeepSeek {
	d := &DeepSeek{
		apiKey:      p.APIKey,
		baseURL:     strings.TrimSuffix(p.BaseURL, "/"),
		model:       p.Model,
		maxTokens:   p.MaxTokens,
		temperature: defaultTemperature,
		batch:       p.Batch,
		client:      &http.Client{Timeout: p.Timeout},
		log:         log.With().Str("strategy", "deepseek").Logger(),
	}
	if d.baseURL == "" {
		d.baseURL = defaultBaseURL
	}
	if d.model == "" {
		d.model = defaultModel
	}
	if d.maxTokens <= 0 {
		d.maxTokens = defaultMaxTokens
	}
	if p.Temperature != nil {
		d.temperature = *p.Temperature
	}
	if d.client.Timeout <= 0 {
		d.client.Timeout = defaultTimeout
	}
	return d
}

func (d *DeepSeek) Name() string { return "deepseek" }

// Decide batches all symbols into one request when enabled and more than one
// symbol is ready, otherwise asks once per symbol.
func (d *DeepSeek) Decide(ctx context.Context, snaps []snapshot.Consolidated) map[string]*signal.Decision {
	out := make(map[string]*signal.Decision, len(snaps))
	if len(snaps) == 0 {
		return out
	}
	if d.batch && len(snaps) > 1 {
		content, err := d.complete(ctx, BatchPrompt(snaps))
		if err != nil {
			d.log.Warn().Err(err).Int("symbols", len(snaps)).Msg("batched analysis failed")
			return out
		}
		decisions, err := signal.ParseBatch([]byte(content))
		if err != nil {
			d.log.Warn().Err(err).Msg("unparseable batched response")
			return out
		}
		for _, s := range snaps {
			if dec, ok := decisions[s.Symbol]; ok {
				out[s.Symbol] = dec
			}
		}
		return out
	}

	for _, s := range snaps {
		if ctx.Err() != nil {
			break
		}
		content, err := d.complete(ctx, SinglePrompt(s))
		if err != nil {
			d.log.Warn().Err(err).Str("symbol", s.Symbol).Msg("analysis failed")
			continue
		}
		dec, err := signal.ParseDecision([]byte(content))
		if err != nil {
			d.log.Warn().Err(err).Str("symbol", s.Symbol).Msg("unparseable response")
			continue
		}
		out[s.Symbol] = dec
	}
	return out
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var errEmptyCompletion = errors.New("completion has no content")

func (d *DeepSeek) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      d.maxTokens,
		Temperature:    d.temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(raw))
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errEmptyCompletion
	}
	d.log.Debug().Str("content", parsed.Choices[0].Message.Content).Msg("completion received")
	return parsed.Choices[0].Message.Content, nil
}
