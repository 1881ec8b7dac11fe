// Package summarize is the C2 summarization capability: a single abstract
// operation, summarize(text, kind, length, query?), backed by an OpenRouter
// chat-completions call.
//
// Grounded on the teacher's internal/plugin/embed/openai HTTP client
// (manual net/http.Request construction, JSON request/response structs,
// bearer auth header) adapted from an embeddings endpoint to a chat
// completions endpoint, since the teacher has no summarization plugin of
// its own.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hybridmem/memory-service/internal/apperr"
)

// Kind is the requested summarization strategy.
type Kind string

const (
	KindAbstractive  Kind = "abstractive"
	KindExtractive   Kind = "extractive"
	KindQueryFocused Kind = "query_focused"
)

// Length is the requested output length tier.
type Length string

const (
	LengthShort    Length = "short"
	LengthMedium   Length = "medium"
	LengthDetailed Length = "detailed"
)

// Summarizer is the C2 abstract capability the engine depends on.
type Summarizer interface {
	Summarize(ctx context.Context, text string, kind Kind, length Length, query string) (string, error)
}

// Client is an OpenRouter-backed Summarizer.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// New builds a Client. endpoint is the OpenRouter-compatible base URL
// (e.g. https://api.openrouter.ai/v1); model is a model identifier such as
// "openrouter/auto".
func New(apiKey, endpoint, model string) *Client {
	return &Client{
		apiKey:   apiKey,
		endpoint: endpoint,
		model:    model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize issues one chat-completion call per the requested kind/length,
// returning dependency_unavailable on transport or auth failure and
// invalid_argument if kind=query_focused with an empty query.
func (c *Client) Summarize(ctx context.Context, text string, kind Kind, length Length, query string) (string, error) {
	if kind == KindQueryFocused && query == "" {
		return "", apperr.InvalidArgument("query_focused summarization requires a non-empty query")
	}
	if c.apiKey == "" {
		return "", apperr.DependencyUnavailable("OpenRouter API key is not configured")
	}

	prompt := buildPrompt(text, kind, length, query)
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a precise summarization assistant for an agent memory service."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", apperr.Internal("encode summarization request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", apperr.Internal("build summarization request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.DependencyUnavailable("summarization request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.DependencyUnavailable("read summarization response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return "", apperr.DependencyUnavailable("summarization endpoint returned status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", apperr.DependencyUnavailable("parse summarization response: %v", err)
	}
	if result.Error != nil {
		return "", apperr.DependencyUnavailable("summarization error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", apperr.DependencyUnavailable("summarization response contained no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func buildPrompt(text string, kind Kind, length Length, query string) string {
	instruction := map[Kind]string{
		KindAbstractive:  "Write an abstractive summary that paraphrases the key points",
		KindExtractive:   "Write an extractive summary using verbatim sentences or phrases from the source",
		KindQueryFocused: fmt.Sprintf("Write a summary focused on answering the query %q", query),
	}[kind]

	lengthHint := map[Length]string{
		LengthShort:    "in one or two sentences",
		LengthMedium:   "in a short paragraph",
		LengthDetailed: "in a detailed multi-paragraph summary",
	}[length]

	return fmt.Sprintf("%s, %s.\n\nText:\n%s", instruction, lengthHint, text)
}
