// Package llm provides answer generation over an OpenAI-compatible chat
// completion API, with a cancellable streaming surface for token-by-token
// delivery.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/smallnest/ragcore"
)

// Fragment is one element of a streamed answer. Err is set on the final
// fragment when the stream terminated abnormally.
type Fragment struct {
	Text string
	Err  error
}

// Generator produces answers from prompts. The stream is a lazy,
// single-consumer sequence: the channel closes after the last fragment, and
// cancelling the context closes the underlying transport and stops emission.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (<-chan Fragment, error)
}

// Client implements Generator over the OpenAI chat completion API.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
}

// Options configures the chat completion client.
type Options struct {
	APIKey      string
	BaseURL     string // Optional, for OpenAI-compatible servers
	Model       string // Default gpt-4o-mini
	Temperature float32
}

// NewClient creates a chat completion client.
func NewClient(opts Options) *Client {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: opts.Temperature,
	}
}

var _ Generator = (*Client)(nil)

func (c *Client) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Stream:      stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// Generate returns the complete answer in one call.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, false))
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ragcore.ErrExternalService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", ragcore.ErrExternalService)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream returns a channel of answer fragments. The channel is closed after
// the final fragment; a terminal transport failure is delivered as the last
// fragment's Err. Cancelling ctx closes the upstream stream and no further
// fragments are emitted.
func (c *Client) Stream(ctx context.Context, prompt string) (<-chan Fragment, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, true))
	if err != nil {
		return nil, fmt.Errorf("%w: chat completion stream: %v", ragcore.ErrExternalService, err)
	}

	fragments := make(chan Fragment)
	go func() {
		defer close(fragments)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case fragments <- Fragment{Err: fmt.Errorf("%w: stream receive: %v", ragcore.ErrExternalService, err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			text := resp.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case fragments <- Fragment{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return fragments, nil
}
