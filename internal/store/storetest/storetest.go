// Package storetest holds the behavioural tests every [store.Store]
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/rehearse/internal/store"
	"github.com/MrWong99/rehearse/pkg/types"
)

// Run exercises a fresh store from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		in := session("s1")
		if err := s.CreateSession(ctx, in); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		got, err := s.GetSession(ctx, "s1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.Status != store.StatusActive {
			t.Errorf("Status = %q, want active", got.Status)
		}
		if got.Role.Title != "Backend Engineer" || len(got.Role.FocusAreas) != 2 {
			t.Errorf("Role = %+v", got.Role)
		}
		if got.Difficulty != types.DifficultyIntense || got.QuestionBudget != 3 {
			t.Errorf("Difficulty/Budget = %q/%d", got.Difficulty, got.QuestionBudget)
		}
		if len(got.Messages) != 0 {
			t.Errorf("Messages = %d, want 0", len(got.Messages))
		}
		if got.Metrics != nil {
			t.Errorf("Metrics = %+v, want nil", got.Metrics)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		_ = s.CreateSession(ctx, session("s1"))
		err := s.CreateSession(ctx, session("s1"))
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Fatalf("err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetSession err = %v, want ErrNotFound", err)
		}
		if err := s.AppendMessages(ctx, "nope", transcript(1)); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("AppendMessages err = %v, want ErrNotFound", err)
		}
		if err := s.MarkAbandoned(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("MarkAbandoned err = %v, want ErrNotFound", err)
		}
	})

	t.Run("append is idempotent", func(t *testing.T) {
		s := newStore(t)
		_ = s.CreateSession(ctx, session("s1"))
		msgs := transcript(4)

		for _, n := range []int{2, 2, 4, 3} {
			if err := s.AppendMessages(ctx, "s1", msgs[:n]); err != nil {
				t.Fatalf("AppendMessages(%d): %v", n, err)
			}
		}
		got, _ := s.GetSession(ctx, "s1")
		if len(got.Messages) != 4 {
			t.Fatalf("Messages = %d, want 4", len(got.Messages))
		}
		for i, m := range got.Messages {
			if m.Content != msgs[i].Content || m.Role != msgs[i].Role {
				t.Errorf("Messages[%d] = %+v, want %+v", i, m, msgs[i])
			}
		}
		if got.Messages[1].Duration != msgs[1].Duration {
			t.Errorf("Duration = %v, want %v", got.Messages[1].Duration, msgs[1].Duration)
		}
	})

	t.Run("complete is idempotent", func(t *testing.T) {
		s := newStore(t)
		_ = s.CreateSession(ctx, session("s1"))
		msgs := transcript(4)
		m := store.DeriveMetrics(msgs)

		for range 2 {
			if err := s.MarkComplete(ctx, "s1", msgs, m); err != nil {
				t.Fatalf("MarkComplete: %v", err)
			}
		}
		got, _ := s.GetSession(ctx, "s1")
		if got.Status != store.StatusCompleted {
			t.Errorf("Status = %q, want completed", got.Status)
		}
		if len(got.Messages) != 4 {
			t.Errorf("Messages = %d, want 4", len(got.Messages))
		}
		if got.Metrics == nil || got.Metrics.CandidateTurns != 2 {
			t.Errorf("Metrics = %+v, want 2 candidate turns", got.Metrics)
		}
		if got.EndedAt.IsZero() {
			t.Error("EndedAt not set")
		}
		if err := s.MarkAbandoned(ctx, "s1"); !errors.Is(err, store.ErrSessionClosed) {
			t.Errorf("MarkAbandoned after complete err = %v, want ErrSessionClosed", err)
		}
	})

	t.Run("abandon", func(t *testing.T) {
		s := newStore(t)
		_ = s.CreateSession(ctx, session("s1"))
		_ = s.AppendMessages(ctx, "s1", transcript(1))
		for range 2 {
			if err := s.MarkAbandoned(ctx, "s1"); err != nil {
				t.Fatalf("MarkAbandoned: %v", err)
			}
		}
		got, _ := s.GetSession(ctx, "s1")
		if got.Status != store.StatusAbandoned {
			t.Errorf("Status = %q, want abandoned", got.Status)
		}
		if len(got.Messages) != 1 {
			t.Errorf("Messages = %d, want 1", len(got.Messages))
		}
		err := s.MarkComplete(ctx, "s1", transcript(2), store.Metrics{})
		if !errors.Is(err, store.ErrSessionClosed) {
			t.Errorf("MarkComplete after abandon err = %v, want ErrSessionClosed", err)
		}
	})
}

func session(id string) store.Session {
	return store.Session{
		ID:            id,
		InterviewType: "technical",
		Difficulty:    types.DifficultyIntense,
		Role: types.RoleContext{
			Title:      "Backend Engineer",
			Company:    "Acme",
			FocusAreas: []string{"Go", "PostgreSQL"},
		},
		QuestionBudget: 3,
	}
}

// transcript returns n alternating messages starting with the interviewer.
func transcript(n int) []types.ConversationMessage {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]types.ConversationMessage, n)
	for i := range msgs {
		m := types.ConversationMessage{
			Role:      types.RoleInterviewer,
			Content:   "Question number one?",
			Timestamp: start.Add(time.Duration(i) * 30 * time.Second),
		}
		if i%2 == 1 {
			m.Role = types.RoleCandidate
			m.Content = "An answer of six words here."
			m.Duration = 12 * time.Second
		}
		msgs[i] = m
	}
	return msgs
}
