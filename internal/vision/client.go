// Package vision implements the HTTP client for a locally hosted
// vision-language model served by Ollama. It covers chat with image
// attachments (/api/chat), one-shot generation (/api/generate), and model
// bootstrap (/api/tags, /api/pull). No API key is required — Ollama runs
// locally.
package vision

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
)

// DefaultModel is the vision-language model used when none is configured.
const DefaultModel = "llama3.2-vision"

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn. Images carry base64-encoded attachments
// passed straight through to the model.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Options are the sampling parameters forwarded to the model. Zero values
// are omitted so the server defaults apply.
type Options struct {
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `json:"temperature,omitempty"`
	// TopP is the nucleus sampling cutoff.
	TopP float32 `json:"top_p,omitempty"`
	// TopK limits sampling to the k most likely tokens.
	TopK int `json:"top_k,omitempty"`
	// NumPredict caps the number of generated tokens.
	NumPredict int `json:"num_predict,omitempty"`
}

// Config holds the settings for constructing a Client.
type Config struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the vision model name (e.g. "llama3.2-vision").
	Model string
	// Timeout bounds each HTTP request. Vision inference is slow; the
	// default is 5 minutes.
	Timeout time.Duration
}

// Client talks to the Ollama HTTP API. It is safe for concurrent use.
type Client struct {
	host   string
	model  string
	client *http.Client
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// chatRequest is the JSON body sent to the Ollama /api/chat endpoint.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// chatResponse is one NDJSON frame from /api/chat (or the whole body when
// stream is false).
type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Chat sends the message history to the model and returns the complete
// response text.
func (c *Client) Chat(ctx context.Context, msgs []Message, opts *Options) (string, error) {
	resp, err := c.post(ctx, "/api/chat", chatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Options:  opts,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("vision: decode chat response: %w", err)
	}
	if err := checkStatus(resp, result.Error); err != nil {
		return "", err
	}
	return result.Message.Content, nil
}

// ChatStream sends the message history with streaming enabled, writing each
// content delta to w as it arrives. The complete response text is returned
// once the stream finishes.
func (c *Client) ChatStream(ctx context.Context, msgs []Message, opts *Options, w io.Writer) (string, error) {
	resp, err := c.post(ctx, "/api/chat", chatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   true,
		Options:  opts,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error bodies are a single JSON object even on streaming requests.
		var e chatResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", checkStatus(resp, e.Error)
	}

	var full strings.Builder
	dec := json.NewDecoder(resp.Body)
	for {
		var frame chatResponse
		if err := dec.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return full.String(), fmt.Errorf("vision: decode stream frame: %w", err)
		}
		if frame.Error != "" {
			return full.String(), fmt.Errorf("vision: %s", frame.Error)
		}
		if frame.Message.Content != "" {
			full.WriteString(frame.Message.Content)
			if w != nil {
				if _, err := io.WriteString(w, frame.Message.Content); err != nil {
					return full.String(), fmt.Errorf("vision: write stream chunk: %w", err)
				}
			}
		}
		if frame.Done {
			break
		}
	}
	return full.String(), nil
}

// GenerateRequest is the input for the one-shot /api/generate endpoint.
type GenerateRequest struct {
	// Prompt is the user prompt.
	Prompt string
	// System optionally overrides the model's system prompt.
	System string
	// Images carries base64-encoded attachments.
	Images []string
	// Options are the sampling parameters.
	Options *Options
}

// generateRequest is the JSON body sent to /api/generate.
type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	System  string   `json:"system,omitempty"`
	Images  []string `json:"images,omitempty"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// generateResponse is the JSON body returned from /api/generate.
type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate runs a one-shot prompt (optionally with images) and returns the
// response text.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	resp, err := c.post(ctx, "/api/generate", generateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Images:  req.Images,
		Stream:  false,
		Options: req.Options,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("vision: decode generate response: %w", err)
	}
	if err := checkStatus(resp, result.Error); err != nil {
		return "", err
	}
	return result.Response, nil
}

// tagsResponse is the JSON body returned from GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// EnsureModel verifies the configured model is installed locally, pulling it
// from the registry when it is not. Pulling a vision model downloads several
// gigabytes — callers should surface progress to the operator before calling.
func (c *Client) EnsureModel(ctx context.Context) error {
	installed, err := c.hasModel(ctx)
	if err != nil {
		return err
	}
	if installed {
		return nil
	}

	resp, err := c.post(ctx, "/api/pull", map[string]interface{}{
		"name":   c.model,
		"stream": false,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("vision: decode pull response: %w", err)
	}
	if err := checkStatus(resp, result.Error); err != nil {
		return fmt.Errorf("vision: pull %s: %w", c.model, err)
	}
	return nil
}

// hasModel reports whether the configured model appears in /api/tags.
// Tag suffixes are ignored so "llama3.2-vision" matches "llama3.2-vision:latest".
func (c *Client) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("vision: create tags request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("vision: tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("vision: tags returned HTTP %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("vision: decode tags response: %w", err)
	}

	want := c.model
	for _, m := range tags.Models {
		name := m.Name
		if i := strings.IndexByte(name, ':'); i >= 0 && !strings.Contains(want, ":") {
			name = name[:i]
		}
		if name == want {
			return true, nil
		}
	}
	return false, nil
}

// Ping checks the Ollama server is reachable. Used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("vision: create ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vision: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision: ping returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// post marshals body and issues a POST to the given API path.
func (c *Client) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("vision: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: request failed: %w", err)
	}
	return resp, nil
}

// checkStatus converts a non-2xx response (or an API error field) into an error.
func checkStatus(resp *http.Response, apiErr string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && apiErr == "" {
		return nil
	}
	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if apiErr != "" {
		msg = apiErr
	}
	return fmt.Errorf("vision: %s", msg)
}
