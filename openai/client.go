// Package openai is the client for the upstream chat completion API.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/config"
	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/logger"
)

const (
	completionsPath = "/v1/chat/completions"
	doneSentinel    = "[DONE]"
)

// Client calls the chat completions endpoint of an OpenAI-compatible provider.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new completion client.
func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.ResponseTimeout(),
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext,
			},
		},
	}
}

// chatRequest is the outbound completion request body.
type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []domain.PromptMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
}

// chatMessage is a message or delta within a completion response.
type chatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// choice is one completion choice; Message is set on blocking responses,
// Delta on stream chunks.
type choice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// chatResponse is the blocking completion response.
type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

// streamChunk is a single SSE chunk from the stream.
type streamChunk struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

// errorResponse is the provider's error body.
type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Complete performs a blocking completion call and returns the assistant
// text. Any transport failure, non-OK status, timeout or unusable payload
// surfaces as a single upstream error with no partial text.
func (c *Client) Complete(ctx context.Context, messages []domain.PromptMessage) (string, error) {
	resp, err := c.post(ctx, chatRequest{Model: c.model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Upstream(err, "failed to read completion response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Upstream(nil, upstreamStatusMessage(resp.StatusCode, respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", apperr.Upstream(err, "failed to decode completion response")
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil || result.Choices[0].Message.Content == "" {
		return "", apperr.Upstream(nil, "completion response has no usable choice")
	}
	return result.Choices[0].Message.Content, nil
}

// StreamEvent is one item of a streaming completion: a text fragment, or a
// terminal error as the final event.
type StreamEvent struct {
	Delta string
	Err   error
}

// Stream starts a streaming completion call. Request and status failures are
// returned synchronously; after that, fragments arrive on the returned
// channel in upstream order, one per data frame, with malformed frames logged
// and skipped and empty deltas dropped. The channel is closed after the
// terminator frame, a read error (delivered as the final event) or context
// cancellation. The sequence is single-pass and not restartable.
func (c *Client) Stream(ctx context.Context, messages []domain.PromptMessage) (<-chan StreamEvent, error) {
	resp, err := c.post(ctx, chatRequest{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apperr.Upstream(nil, upstreamStatusMessage(resp.StatusCode, respBody))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}
				select {
				case events <- StreamEvent{Err: apperr.Upstream(err, "completion stream aborted")}:
				case <-ctx.Done():
				}
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == doneSentinel {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// One bad frame must not lose the rest of the reply.
				logger.L.Warn("skipping malformed stream frame", "data", data, "error", err)
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case events <- StreamEvent{Delta: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// post sends the completion request, mapping transport failures to upstream
// errors.
func (c *Client) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to marshal completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Upstream(err, "failed to create completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream(err, "completion request failed")
	}
	return resp, nil
}

// upstreamStatusMessage renders a provider error status, preferring the
// structured error body when one is present.
func upstreamStatusMessage(status int, body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Sprintf("completion API error [%d]: %s (type: %s)", status, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Sprintf("completion API error [%d]: %s", status, string(body))
}
