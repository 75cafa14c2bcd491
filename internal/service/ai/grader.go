package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"hwgrader/internal/models"
	"hwgrader/internal/textclean"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// GraderOptions tunes a Grader. Zero values fall back to the defaults.
type GraderOptions struct {
	MaxScore        int
	MinStudentChars int
	Timeout         time.Duration
	Logger          *slog.Logger
}

// Grader scores a student's answers against the question sheet with one
// chat-completion call. It never returns an error: every failure is folded
// into the Evaluation's Outcome and a user-facing message.
type Grader struct {
	model    model.BaseChatModel
	maxScore int
	minChars int
	timeout  time.Duration
	log      *slog.Logger
}

func NewGrader(m model.BaseChatModel, opts GraderOptions) *Grader {
	if opts.MaxScore < 1 {
		opts.MaxScore = 10
	}
	if opts.MinStudentChars <= 0 {
		opts.MinStudentChars = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Grader{
		model:    m,
		maxScore: opts.MaxScore,
		minChars: opts.MinStudentChars,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
}

func (g *Grader) Evaluate(ctx context.Context, questionText, studentText string) models.Evaluation {
	cleaned := textclean.Clean(studentText)
	if utf8.RuneCountInString(cleaned) < g.minChars {
		g.log.Info("student answer too short to grade", "chars", utf8.RuneCountInString(cleaned))
		return models.Evaluation{
			MaxScore: g.maxScore,
			Feedback: MsgInsufficientContent,
			Outcome:  models.OutcomeInsufficient,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msgs := []*schema.Message{
		schema.SystemMessage(graderSystemPrompt),
		schema.UserMessage(gradingPrompt(questionText, cleaned, g.maxScore)),
	}
	resp, err := g.model.Generate(ctx, msgs)
	if err != nil || resp == nil {
		g.log.Error("grading request failed", "err", err)
		return models.Evaluation{
			MaxScore: g.maxScore,
			Feedback: MsgGradingFailed,
			Outcome:  models.OutcomeRemoteFailed,
		}
	}

	eval := ParseEvaluation(resp.Content, g.maxScore)
	if eval.Outcome == models.OutcomePartial {
		g.log.Warn("grading reply did not follow the expected format", "reply_len", len(strings.TrimSpace(resp.Content)))
	}
	return eval
}
