// Copyright 2025 The wuzhou-kg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zhensxz/wuzhou-kg/core"
)

// Client performs one extraction call per segment against an OpenAI-compatible
// chat endpoint. Safe for concurrent use.
type Client struct {
	model  llms.Model
	cfg    *Config
	schema *jsonschema.Schema
	logger *slog.Logger
}

// New creates a client from configuration.
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}

	return NewWithModel(model, cfg)
}

// NewWithModel creates a client over an existing model. Used by tests to
// substitute a fake model.
func NewWithModel(model llms.Model, cfg *Config) (*Client, error) {
	schema, err := compilePayloadSchema()
	if err != nil {
		return nil, err
	}

	return &Client{
		model:  model,
		cfg:    cfg,
		schema: schema,
		logger: slog.Default().With("component", "extract-client"),
	}, nil
}

// Extract performs a single extraction attempt for the segment.
// The streamed response is accumulated in full before any validation; no
// partial payload ever leaves this method. Failures are *ServiceError values.
func (c *Client) Extract(ctx context.Context, seg *core.Segment) (*core.ExtractionResult, error) {
	reqID := uuid.NewString()
	start := time.Now()

	prompt := buildUserPrompt(seg.Title, seg.Text)
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	// Accumulate streamed chunks; the buffer only becomes a candidate payload
	// once GenerateContent returns, which is the stream's termination signal.
	var buf strings.Builder
	response, err := c.model.GenerateContent(callCtx, content,
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithJSONMode(),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			buf.Write(chunk)
			return nil
		}),
	)
	if err != nil {
		serr := classify(err)
		c.logger.Warn("extraction call failed",
			"req_id", reqID,
			"segment", seg.Id,
			"kind", serr.Kind.String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"err", err)
		return nil, serr
	}

	text := buf.String()
	if len(response.Choices) > 0 && len(response.Choices[0].Content) > len(text) {
		text = response.Choices[0].Content
	}
	if strings.TrimSpace(text) == "" {
		return nil, malformed(errors.New("empty response"))
	}

	payload, err := c.parsePayload(text)
	if err != nil {
		c.logger.Warn("extraction response rejected",
			"req_id", reqID,
			"segment", seg.Id,
			"content_chars", len(text),
			"err", err)
		return nil, malformed(err)
	}

	elapsed := time.Since(start)
	c.logger.Debug("extraction succeeded",
		"req_id", reqID,
		"segment", seg.Id,
		"entities", len(payload.Entities),
		"events", len(payload.Events),
		"relations", len(payload.Relations),
		"elapsed_ms", elapsed.Milliseconds())

	return &core.ExtractionResult{
		SegmentId: seg.Id,
		Work:      seg.Work,
		Volume:    seg.Volume,
		Title:     seg.Title,
		Model:     c.cfg.Model,
		Payload:   *payload,
		Usage: &core.Usage{
			PromptChars:  len(prompt),
			ContentChars: len(text),
			ElapsedMS:    elapsed.Milliseconds(),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// parsePayload turns raw model output into a validated payload.
func (c *Client) parsePayload(text string) (*core.Payload, error) {
	cleaned := stripFences(text)
	cleaned = sliceObject(cleaned)
	if cleaned == "" {
		return nil, errors.New("no JSON object in response")
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return nil, fmt.Errorf("parse response JSON: %w", err)
	}

	// Some models wrap the result in an "extraction" envelope.
	if inner, ok := generic["extraction"].(map[string]any); ok {
		generic = inner
	}

	if err := c.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("response does not match payload schema: %w", err)
	}

	data, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-encode payload: %w", err)
	}
	var payload core.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 3 {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// sliceObject cuts the outermost JSON object out of surrounding prose.
func sliceObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
