// Package llm implements a reusable OpenAI-compatible chat-completions
// client: GPTRequest/GPTMessage/GPTResponse wire shapes over a manual
// http.NewRequest/client.Do call, a streaming code path
// (Server-Sent-Events style "data: {...}" lines) for the chat core,
// and a rolling-summary prompt sequence for the summarize stage.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/akirose/yt-pipeline-core/adapter"
)

const (
	summarizationSystemPrompt = `You are an expert at summarizing spoken video content.

You will be given a block of transcript lines in the form "[HH:MM:SS-HH:MM:SS]: text" and, optionally, the summary produced so far. Combine them into a single, updated running summary organized by topic, each topic introduced with its starting timestamp in [HH:MM:SS] or [MM:SS] form, followed by concise bullet points. Do not repeat a topic that is already fully covered. Do not include any preamble or closing remarks, only the summary itself.`

	chatSystemPrompt = `You are a helpful assistant answering questions about a YouTube video the user has already watched. Use the provided summary and transcript excerpts as your source of truth. Be concise and reference timestamps when useful.`
)

// GPTMessage is one message of a chat-completion request.
type GPTMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GPTRequest is the request body shape shared by summarize and chat.
type GPTRequest struct {
	Model       string       `json:"model"`
	Messages    []GPTMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Stream      bool         `json:"stream"`
}

// GPTResponse is the non-streaming response shape.
type GPTResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// gptStreamChunk is one "data: {...}" line of a streamed response.
type gptStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Client is an OpenAI-compatible chat-completions client used for
// both rolling summarization and streaming chat.
type Client struct {
	APIURL     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

func New(apiURL, model string, maxTokens int) *Client {
	return &Client{
		APIURL:     apiURL,
		Model:      model,
		MaxTokens:  maxTokens,
		HTTPClient: &http.Client{},
	}
}

// SummarizeChunk implements adapter.Summarizer: it folds chunkText
// into currentSummary and returns the new rolling summary.
func (c *Client) SummarizeChunk(ctx context.Context, apiKey, currentSummary, chunkText string) (string, error) {
	userPrompt := fmt.Sprintf("Transcript chunk:\n%s\n", chunkText)
	if currentSummary != "" {
		userPrompt += fmt.Sprintf("\nSummary so far:\n%s\n", currentSummary)
	}

	req := GPTRequest{
		Model: c.Model,
		Messages: []GPTMessage{
			{Role: "system", Content: summarizationSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.MaxTokens,
		Temperature: 0.2,
	}

	resp, err := c.complete(ctx, apiKey, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) complete(ctx context.Context, apiKey string, body GPTRequest) (*GPTResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("language model request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed GPTResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// StreamChat implements adapter.ChatCompleter. It issues a streaming
// chat-completions request and forwards each delta as a ChatToken;
// the token channel is closed once the stream ends or the request
// fails, and a single error (possibly nil) is written to the error
// channel at that point.
func (c *Client) StreamChat(ctx context.Context, apiKey, summary string, history []adapter.ChatTurn, message string) (<-chan adapter.ChatToken, <-chan error) {
	tokens := make(chan adapter.ChatToken)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		messages := []GPTMessage{{Role: "system", Content: chatSystemPrompt}}
		if summary != "" {
			messages = append(messages, GPTMessage{Role: "system", Content: "Here is the summary of the video: " + summary})
		}
		for _, turn := range history {
			messages = append(messages, GPTMessage{Role: turn.Role, Content: turn.Content})
		}
		messages = append(messages, GPTMessage{Role: "user", Content: message})

		body := GPTRequest{
			Model:       c.Model,
			Messages:    messages,
			MaxTokens:   c.MaxTokens,
			Temperature: 0.7,
			Stream:      true,
		}

		payload, err := json.Marshal(body)
		if err != nil {
			errs <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errs <- fmt.Errorf("language model request failed with status %d: %s", resp.StatusCode, string(body))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				tokens <- adapter.ChatToken{Done: true}
				return
			}

			var chunk gptStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				select {
				case tokens <- adapter.ChatToken{Content: content}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if chunk.Choices[0].FinishReason != nil {
				tokens <- adapter.ChatToken{Done: true}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}()

	return tokens, errs
}
