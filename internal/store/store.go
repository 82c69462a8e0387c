// Package store defines the durable record of interviews: the session as
// created through the API, its transcript, and the summary metrics written
// when the interview completes.
//
// Every write is safe to retry. Messages are keyed by their position in the
// transcript, so appending an overlapping transcript stores each message once;
// completion and abandonment only apply to active sessions and repeat calls
// succeed without changing anything.
//
// [MemoryStore] serves tests and single-node development; the postgres
// sub-package holds the production backend.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("store: session not found")

	// ErrAlreadyExists is returned by CreateSession for a duplicate id.
	ErrAlreadyExists = errors.New("store: session already exists")

	// ErrSessionClosed is returned when completing an abandoned session or
	// abandoning a completed one.
	ErrSessionClosed = errors.New("store: session already closed")
)

// Status is the lifecycle state of a persisted session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Session is one interview as persisted.
type Session struct {
	ID             string            `json:"id"`
	InterviewType  string            `json:"interview_type"`
	Difficulty     types.Difficulty  `json:"difficulty"`
	Role           types.RoleContext `json:"role"`
	QuestionBudget int               `json:"question_budget"`
	Status         Status            `json:"status"`

	Messages []types.ConversationMessage `json:"messages"`

	// Metrics is set once the session completes.
	Metrics *Metrics `json:"metrics,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// EndedAt is zero while the session is active.
	EndedAt time.Time `json:"ended_at,omitzero"`
}

// Metrics summarises a finished transcript.
type Metrics struct {
	CandidateTurns           int     `json:"candidate_turns"`
	InterviewerTurns         int     `json:"interviewer_turns"`
	CandidateSpeakingSeconds float64 `json:"candidate_speaking_seconds"`
	AverageAnswerWords       float64 `json:"average_answer_words"`
	DurationSeconds          float64 `json:"duration_seconds"`
}

// DeriveMetrics computes [Metrics] from a transcript. DurationSeconds spans
// the first to the last message timestamp.
func DeriveMetrics(msgs []types.ConversationMessage) Metrics {
	var (
		m     Metrics
		words int
	)
	for _, msg := range msgs {
		switch msg.Role {
		case types.RoleCandidate:
			m.CandidateTurns++
			m.CandidateSpeakingSeconds += msg.Duration.Seconds()
			words += len(strings.Fields(msg.Content))
		case types.RoleInterviewer:
			m.InterviewerTurns++
		}
	}
	if m.CandidateTurns > 0 {
		m.AverageAnswerWords = float64(words) / float64(m.CandidateTurns)
	}
	if len(msgs) > 1 {
		if d := msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp); d > 0 {
			m.DurationSeconds = d.Seconds()
		}
	}
	return m
}

// Store is the Persistence Adapter.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateSession stores a new active session. ID must be set.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns the session with its full transcript.
	GetSession(ctx context.Context, id string) (*Session, error)

	// AppendMessages stores msgs as the transcript of id. msgs is the
	// transcript from its first message; positions already stored are
	// skipped.
	AppendMessages(ctx context.Context, id string, msgs []types.ConversationMessage) error

	// MarkComplete stores msgs like AppendMessages and marks the session
	// completed with m.
	MarkComplete(ctx context.Context, id string, msgs []types.ConversationMessage, m Metrics) error

	// MarkAbandoned marks the session abandoned.
	MarkAbandoned(ctx context.Context, id string) error
}
