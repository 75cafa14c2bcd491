// Package assistant runs the two user-facing flows: grading an uploaded
// answer sheet against a question sheet, and answering follow-up questions
// about that answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hwgrader/internal/models"
	"hwgrader/internal/session"
)

var (
	ErrMissingDocuments = errors.New("both the question sheet and the answer sheet are required")
	ErrNoEvaluation     = errors.New("no evaluation found; grade an answer sheet first")
	ErrEmptyQuestion    = errors.New("question must not be empty")

	// ErrExtraction wraps every failure to read text out of an upload.
	ErrExtraction = errors.New("could not extract text")
)

// Extractor turns an uploaded document into text.
type Extractor interface {
	Extract(ctx context.Context, doc *models.Document, mode models.ExtractionMode) (string, error)
}

// Grader scores an answer.
type Grader interface {
	Evaluate(ctx context.Context, questionText, studentText string) models.Evaluation
}

// Tutor answers a question about an answer.
type Tutor interface {
	Ask(ctx context.Context, studentText, question string) models.ChatReply
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Extractor  Extractor
	Grader     Grader
	Tutor      Tutor
	Sessions   session.Store
	SessionTTL time.Duration
	Logger     *slog.Logger
}

type Service struct {
	extractor Extractor
	grader    Grader
	tutor     Tutor
	sessions  session.Store
	ttl       time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	if deps.Extractor == nil || deps.Grader == nil || deps.Tutor == nil || deps.Sessions == nil {
		return nil, errors.New("assistant: extractor, grader, tutor and session store are required")
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		extractor: deps.Extractor,
		grader:    deps.Grader,
		tutor:     deps.Tutor,
		sessions:  deps.Sessions,
		ttl:       deps.SessionTTL,
		log:       deps.Logger,
		now:       time.Now,
	}, nil
}

// Evaluate extracts both documents, grades the answer and stores the result
// so follow-up questions can refer to it. The question sheet is read as
// printed text, the answer sheet as handwriting.
func (s *Service) Evaluate(ctx context.Context, question, student *models.Document) (*models.EvaluationSession, error) {
	if question == nil || student == nil || len(question.Data) == 0 || len(student.Data) == 0 {
		return nil, ErrMissingDocuments
	}

	questionText, err := s.extractor.Extract(ctx, question, models.ModePrinted)
	if err != nil {
		return nil, fmt.Errorf("%w from question sheet %q: %w", ErrExtraction, question.FileName, err)
	}
	studentText, err := s.extractor.Extract(ctx, student, models.ModeHandwritten)
	if err != nil {
		return nil, fmt.Errorf("%w from answer sheet %q: %w", ErrExtraction, student.FileName, err)
	}
	questionText = strings.TrimSpace(questionText)
	studentText = strings.TrimSpace(studentText)
	s.log.Debug("extracted documents",
		"question_file", question.FileName, "question_bytes", question.Size(), "question_chars", len(questionText),
		"student_file", student.FileName, "student_bytes", student.Size(), "student_chars", len(studentText))

	eval := s.grader.Evaluate(ctx, questionText, studentText)
	s.log.Info("graded answer sheet", "score", eval.Score, "max_score", eval.MaxScore, "outcome", eval.Outcome)

	sess := session.NewSession(questionText, studentText, eval, s.ttl, s.now())
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save evaluation: %w", err)
	}
	return sess, nil
}

// Ask answers question using the answer text of a stored evaluation.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (models.ChatReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.ChatReply{}, ErrEmptyQuestion
	}
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return models.ChatReply{}, err
	}
	reply := s.tutor.Ask(ctx, sess.StudentText, question)
	s.log.Info("answered follow-up question", "session_id", sess.ID, "outcome", reply.Outcome)
	return reply, nil
}

// Session loads a stored evaluation.
func (s *Service) Session(ctx context.Context, sessionID string) (*models.EvaluationSession, error) {
	if !session.ValidID(sessionID) {
		return nil, ErrNoEvaluation
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNoEvaluation
		}
		return nil, fmt.Errorf("load evaluation: %w", err)
	}
	return sess, nil
}

// Discard removes a stored evaluation before its TTL runs out.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete evaluation: %w", err)
	}
	s.log.Info("discarded evaluation", "session_id", sessionID)
	return nil
}
