package models

import "time"

// Outcome tells callers how a grading or chat result was produced.
type Outcome string

const (
	// OutcomeParsed means both score and feedback were read from the reply.
	OutcomeParsed Outcome = "parsed"
	// OutcomePartial means the reply lacked a score or a feedback section.
	OutcomePartial Outcome = "partial"
	// OutcomeInsufficient means too little text survived cleaning; no remote call was made.
	OutcomeInsufficient Outcome = "insufficient_content"
	// OutcomeRemoteFailed means the remote model call failed.
	OutcomeRemoteFailed Outcome = "remote_failed"
)

// Evaluation is the result of grading one answer sheet.
// Score is always within [0, MaxScore].
type Evaluation struct {
	Score    int     `json:"score"`
	MaxScore int     `json:"max_score"`
	Feedback string  `json:"feedback"`
	Outcome  Outcome `json:"outcome"`
	// Raw holds the unparsed model reply, empty when no call was made.
	Raw string `json:"-"`
}

// ChatReply is the answer to a follow-up question.
type ChatReply struct {
	Text    string  `json:"reply"`
	Outcome Outcome `json:"outcome"`
}

// EvaluationSession keeps the extracted texts of one evaluation alive for
// follow-up questions until it expires.
type EvaluationSession struct {
	ID           string     `json:"session_id"`
	QuestionText string     `json:"question_text"`
	StudentText  string     `json:"student_text"`
	Evaluation   Evaluation `json:"evaluation"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}
