package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"hwgrader/internal/models"
	"hwgrader/internal/textclean"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Tutor answers follow-up questions using the student's answer text as context.
type Tutor struct {
	model   model.BaseChatModel
	timeout time.Duration
	log     *slog.Logger
}

func NewTutor(m model.BaseChatModel, timeout time.Duration, logger *slog.Logger) *Tutor {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tutor{model: m, timeout: timeout, log: logger}
}

func (t *Tutor) Ask(ctx context.Context, studentText, question string) models.ChatReply {
	cleaned := textclean.Clean(studentText)
	if cleaned == "" {
		return models.ChatReply{Text: MsgInsufficientContent, Outcome: models.OutcomeInsufficient}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	msgs := []*schema.Message{
		schema.SystemMessage(tutorSystemPrompt),
		schema.UserMessage(chatPrompt(cleaned, question)),
	}
	resp, err := t.model.Generate(ctx, msgs)
	if err != nil || resp == nil {
		t.log.Error("chat request failed", "err", err)
		return models.ChatReply{Text: MsgChatFailed, Outcome: models.OutcomeRemoteFailed}
	}
	return models.ChatReply{Text: strings.TrimSpace(resp.Content), Outcome: models.OutcomeParsed}
}
