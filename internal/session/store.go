// Package session keeps evaluation results alive between the evaluate and
// ask steps. Entries expire after a TTL and nothing is persisted.
package session

import (
	"context"
	"errors"
	"time"

	"hwgrader/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("evaluation session not found")

// Store saves and loads evaluation sessions.
type Store interface {
	Save(ctx context.Context, s *models.EvaluationSession) error
	Get(ctx context.Context, id string) (*models.EvaluationSession, error)
	Delete(ctx context.Context, id string) error
}

// NewSession builds a session with a fresh id and expiry.
func NewSession(questionText, studentText string, eval models.Evaluation, ttl time.Duration, now time.Time) *models.EvaluationSession {
	return &models.EvaluationSession{
		ID:           uuid.NewString(),
		QuestionText: questionText,
		StudentText:  studentText,
		Evaluation:   eval,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// ValidID reports whether id looks like a session id, so callers can reject
// garbage before touching the store.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
