package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
)

// ollamaChatModel adapts the Ollama chat API to eino's BaseChatModel.
type ollamaChatModel struct {
	client *api.Client
	model  string
}

func (o *ollamaChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	msgs, err := toOllamaMessages(input)
	if err != nil {
		return nil, err
	}
	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &stream,
	}

	var out strings.Builder
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		_, werr := out.WriteString(resp.Message.Content)
		return werr
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return &schema.Message{Role: schema.Assistant, Content: out.String()}, nil
}

func (o *ollamaChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := o.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toOllamaMessages(input []*schema.Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(input))
	for _, m := range input {
		if m == nil {
			continue
		}
		msg := api.Message{Role: string(m.Role), Content: m.Content}
		for _, part := range m.MultiContent {
			switch part.Type {
			case schema.ChatMessagePartTypeText:
				if msg.Content != "" {
					msg.Content += "\n"
				}
				msg.Content += part.Text
			case schema.ChatMessagePartTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				img, err := decodeDataURL(part.ImageURL.URL)
				if err != nil {
					return nil, err
				}
				msg.Images = append(msg.Images, api.ImageData(img))
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// decodeDataURL returns the payload of a base64 data URL.
func decodeDataURL(u string) ([]byte, error) {
	if !strings.HasPrefix(u, "data:") {
		return nil, errors.New("ollama accepts inline images only")
	}
	idx := strings.Index(u, ";base64,")
	if idx < 0 {
		return nil, errors.New("image data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(u[idx+len(";base64,"):])
	if err != nil {
		return nil, fmt.Errorf("decode image data url: %w", err)
	}
	return data, nil
}
