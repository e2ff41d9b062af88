package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

// LLMClient is the chat-completion surface the generation pipeline depends
// on. StreamCompletion delivers raw text chunks as the model produces them;
// CompleteObject returns a single JSON object for prompts that expect a
// structured response.
type LLMClient interface {
	StreamCompletion(ctx context.Context, systemPrompt, userPrompt string, onChunk func(chunk string) error) error
	CompleteObject(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int
}

func NewOpenAIClient(log *logger.Logger) (LLMClient, error) {
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log)
	model := utils.GetEnv("OPENAI_MODEL", "gpt-4o-2024-08-06", log)
	timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 180, log)
	maxRetries := utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 4, log)

	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// streamInterruptedError marks a failure after stream content already
// reached the caller. Never retryable: re-running the attempt would
// replay delivered chunks into the same downstream parser.
type streamInterruptedError struct {
	err error
}

func (e *streamInterruptedError) Error() string {
	return "stream interrupted: " + e.err.Error()
}

func (e *streamInterruptedError) Unwrap() error { return e.err }

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var interrupted *streamInterruptedError
	if errors.As(err, &interrupted) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Stream         bool           `json:"stream,omitempty"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *openAIClient) newRequest(ctx context.Context, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// retrying wraps a single attempt in the shared backoff loop. Respects
// Retry-After on 429s, caps sleeps at 10s and jitters them.
func (c *openAIClient) retrying(ctx context.Context, attempt func() (*http.Response, error)) error {
	backoff := 1 * time.Second

	for i := 0; i <= c.maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := attempt()
		if err == nil {
			return nil
		}
		if !isRetryableErr(err) {
			return err
		}
		if i == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if d, perr := time.ParseDuration(ra + "s"); perr == nil && d > 0 {
					sleepFor = d
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("openai request retrying",
			"attempt", i+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// StreamCompletion opens a streaming chat completion and forwards each text
// delta to onChunk. Retries only cover failures before the first chunk is
// delivered; once content has flowed downstream a mid-stream failure is
// surfaced to the caller.
func (c *openAIClient) StreamCompletion(ctx context.Context, systemPrompt, userPrompt string, onChunk func(string) error) error {
	body := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream:      true,
		Temperature: 0.7,
	}

	delivered := false
	attempt := func() (*http.Response, error) {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw := make([]byte, 4096)
			n, _ := resp.Body.Read(raw)
			return resp, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw[:n])}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return nil, nil
			}
			var chunk chatCompletionChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.log.Warn("skipping malformed stream event", "error", err.Error())
				continue
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				delivered = true
				if err := onChunk(choice.Delta.Content); err != nil {
					return nil, err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return c.retrying(ctx, func() (*http.Response, error) {
		resp, err := attempt()
		if err != nil && delivered {
			return resp, &streamInterruptedError{err: err}
		}
		return resp, err
	})
}

// CompleteObject runs a non-streaming completion in JSON mode and returns
// the raw object. Satisfies the structured-response dependencies of the
// section agents, the moderation gate and the quiz pipeline.
func (c *openAIClient) CompleteObject(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error) {
	body := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]any{"type": "json_object"},
	}

	var out json.RawMessage
	err := c.retrying(ctx, func() (*http.Response, error) {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var decoded chatCompletionResponse
		if resp.StatusCode != http.StatusOK {
			raw := make([]byte, 4096)
			n, _ := resp.Body.Read(raw)
			return resp, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw[:n])}
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode completion: %w", err)
		}
		if len(decoded.Choices) == 0 {
			return nil, fmt.Errorf("empty completion response")
		}
		choice := decoded.Choices[0]
		if choice.Message.Refusal != "" {
			return nil, fmt.Errorf("model refused: %s", choice.Message.Refusal)
		}
		text := strings.TrimSpace(choice.Message.Content)
		if !json.Valid([]byte(text)) {
			return nil, fmt.Errorf("completion is not valid JSON")
		}
		out = json.RawMessage(text)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
