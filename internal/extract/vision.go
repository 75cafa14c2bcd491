package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const visionInstruction = "Transcribe the handwritten text in this image exactly as written. " +
	"Return only the transcription, one line of handwriting per line, with no commentary."

// VisionRecognizer transcribes handwriting by sending each page image to a
// multimodal chat model.
type VisionRecognizer struct {
	model model.BaseChatModel
}

func NewVisionRecognizer(m model.BaseChatModel) (*VisionRecognizer, error) {
	if m == nil {
		return nil, errors.New("vision recognizer requires a chat model")
	}
	return &VisionRecognizer{model: m}, nil
}

func (v *VisionRecognizer) Name() string { return "vision" }

func (v *VisionRecognizer) Recognize(ctx context.Context, page []byte) ([]string, error) {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(page)
	msgs := []*schema.Message{
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: visionInstruction},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: url}},
			},
		},
	}
	resp, err := v.model.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("vision transcription: %w", err)
	}
	if resp == nil {
		return nil, nil
	}
	var fragments []string
	for _, line := range strings.Split(resp.Content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fragments = append(fragments, line)
		}
	}
	return fragments, nil
}
