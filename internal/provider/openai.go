package provider

import (
	"context"
	"errors"
	"io"

	"recall-backend/internal/config"
	"recall-backend/internal/utils"

	openai "github.com/sashabaranov/go-openai"
)

type openAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds a completion provider on the OpenAI chat completion
// streaming API. BaseURL may point at any compatible endpoint.
func NewOpenAI(cfg config.OpenAIConfig) Provider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = utils.NewHTTPClient(cfg.Timeout)

	return &openAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (p *openAIProvider) Complete(ctx context.Context, prompt string) (Stream, error) {
	upstream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return nil, err
	}

	return &openAIStream{upstream: upstream}, nil
}

type openAIStream struct {
	upstream *openai.ChatCompletionStream
}

// Recv normalizes upstream chunks one at a time: non-empty deltas pass
// through in order, role-only and finish chunks are skipped, and the
// upstream EOF becomes the Completed event.
func (s *openAIStream) Recv() (Event, error) {
	for {
		resp, err := s.upstream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{Kind: Completed}, nil
			}
			return Event{}, err
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return Event{Kind: Delta, Text: delta}, nil
		}
	}
}

func (s *openAIStream) Close() error {
	return s.upstream.Close()
}
