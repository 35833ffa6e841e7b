// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gateway calls a multimodal chat-completions API with a single
// forced tool, so every response is structured data matching a declared
// schema. It is the only place loosely-typed model output is handled:
// callers receive typed values from Decode or a classified *Error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/recap-engine/internal/httputil"
	"github.com/pdiddy/recap-engine/pkg/types"
)

// DefaultURL is the chat completions endpoint used when none is configured.
const DefaultURL = "https://ai.gateway.lovable.dev/v1/chat/completions"

// DefaultModel is the model used when none is configured.
const DefaultModel = "google/gemini-2.5-flash"

// Tool declares the function the model is forced to call.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Call is one inference request.
type Call struct {
	// System is the role and behavior instruction.
	System string

	// User is the text part of the user message.
	User string

	// Images are inline data URIs appended to the user message after User.
	Images []string

	Tool Tool
}

// Invoker performs one schema-forced inference call and returns the raw
// tool arguments. Client implements it; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (json.RawMessage, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	url               string
	model             string
	apiKey            string
	userAgent         string
	allowTextFallback bool
	http              *http.Client
	pacer             *httputil.Pacer
	logger            *log.Logger
}

var _ Invoker = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPacer spaces outbound calls through p.
func WithPacer(p *httputil.Pacer) Option {
	return func(cl *Client) { cl.pacer = p }
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New builds a Client from cfg. It fails with ErrMissingCredential when
// cfg.APIKey is empty, before any network activity.
func New(cfg types.GatewayConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	c := &Client{
		url:               cfg.URL,
		model:             cfg.Model,
		apiKey:            cfg.APIKey,
		userAgent:         cfg.UserAgent,
		allowTextFallback: cfg.AllowTextFallback,
		http:              &http.Client{Timeout: cfg.Timeout},
		logger:            log.Default(),
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []toolSpec    `json:"tools"`
	ToolChoice toolChoice    `json:"tool_choice"`
}

// chatMessage content is either a string or a []contentPart.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters"`
}

type toolChoice struct {
	Type     string           `json:"type"`
	Function toolChoiceTarget `json:"function"`
}

type toolChoiceTarget struct {
	Name string `json:"name"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// buildRequest renders call as a chat completions body. Images are attached
// only when the call carries them.
func (c *Client) buildRequest(call Call) chatRequest {
	var user any = call.User
	if len(call.Images) > 0 {
		parts := make([]contentPart, 0, len(call.Images)+1)
		parts = append(parts, contentPart{Type: "text", Text: call.User})
		for _, img := range call.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img}})
		}
		user = parts
	}

	return chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: call.System},
			{Role: "user", Content: user},
		},
		Tools: []toolSpec{{
			Type: "function",
			Function: functionSpec{
				Name:        call.Tool.Name,
				Description: call.Tool.Description,
				Parameters:  call.Tool.Parameters,
			},
		}},
		ToolChoice: toolChoice{Type: "function", Function: toolChoiceTarget{Name: call.Tool.Name}},
	}
}

// Invoke sends call and returns the forced tool's arguments as JSON. The
// arguments are guaranteed to be a well-formed JSON object; conformance to
// the tool schema is checked by Decode. Failed calls are never retried.
func (c *Client) Invoke(ctx context.Context, call Call) (json.RawMessage, error) {
	body, err := json.Marshal(c.buildRequest(call))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("gateway call", "tool", call.Tool.Name, "model", c.model, "images", len(call.Images))

	resp, err := c.pacer.Do(ctx, c.http, req)
	if err != nil {
		return nil, c.transportError(ctx, call.Tool.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := httputil.ReadErrorBody(resp)
		c.logger.Warn("gateway error status", "tool", call.Tool.Name, "status", resp.StatusCode)
		return nil, &Error{Kind: statusKind(resp.StatusCode), Tool: call.Tool.Name, Status: resp.StatusCode, Detail: detail}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, c.transportError(ctx, call.Tool.Name, err)
		}
		return nil, &Error{Kind: ErrSchemaViolation, Tool: call.Tool.Name, Detail: "decoding response body", Err: err}
	}

	return c.arguments(cr, call.Tool.Name)
}

// arguments pulls the tool-call arguments out of a response, falling back
// to free-text JSON only when allowed.
func (c *Client) arguments(cr chatResponse, tool string) (json.RawMessage, error) {
	if len(cr.Choices) == 0 {
		return nil, &Error{Kind: ErrSchemaViolation, Tool: tool, Detail: "response has no choices"}
	}
	msg := cr.Choices[0].Message

	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != "" && tc.Function.Name != tool {
			continue
		}
		return parseObject(tc.Function.Arguments, tool)
	}

	if c.allowTextFallback && strings.TrimSpace(msg.Content) != "" {
		obj, err := extractJSON(msg.Content)
		if err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Tool: tool, Detail: "no tool call and no usable JSON in content", Err: err}
		}
		c.logger.Warn("gateway response had no tool call, used text fallback", "tool", tool)
		return parseObject(obj, tool)
	}

	return nil, &Error{Kind: ErrSchemaViolation, Tool: tool, Detail: "response has no tool call"}
}

// parseObject accepts s only if it is a JSON object. A literal null is
// rejected too.
func parseObject(s, tool string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, &Error{Kind: ErrSchemaViolation, Tool: tool, Detail: "unparsable tool arguments", Err: err}
	}
	if obj == nil {
		return nil, &Error{Kind: ErrSchemaViolation, Tool: tool, Detail: "tool arguments are not an object"}
	}
	return json.RawMessage(s), nil
}

func (c *Client) transportError(ctx context.Context, tool string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &Error{Kind: ErrTimeout, Tool: tool, Err: ctxErr}
		}
		return ctxErr
	}
	if isTimeout(err) {
		return &Error{Kind: ErrTimeout, Tool: tool, Err: err}
	}
	return &Error{Kind: ErrUpstreamUnavailable, Tool: tool, Err: err}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Decode invokes call and decodes the arguments into T after validating
// them against the tool's parameter schema. Any mismatch is reported as
// ErrSchemaViolation; no default value is ever substituted.
func Decode[T any](ctx context.Context, inv Invoker, call Call) (T, error) {
	var zero T

	raw, err := inv.Invoke(ctx, call)
	if err != nil {
		return zero, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return zero, &Error{Kind: ErrSchemaViolation, Tool: call.Tool.Name, Detail: "unparsable tool arguments", Err: err}
	}
	if err := call.Tool.Parameters.Validate(generic); err != nil {
		return zero, &Error{Kind: ErrSchemaViolation, Tool: call.Tool.Name, Err: err}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, &Error{Kind: ErrSchemaViolation, Tool: call.Tool.Name, Detail: "decoding tool arguments", Err: err}
	}
	return out, nil
}
