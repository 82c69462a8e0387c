// Package types defines the shared types used across all Rehearse packages.
//
// These types form the lingua franca between providers, the model catalogue,
// the fallback executor and the interview state machine. Each package defines
// its own domain types; cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// Category is a capability category: the kind of inference operation a model
// can serve. The set is fixed and closed.
type Category string

const (
	// CategorySTT is speech-to-text transcription.
	CategorySTT Category = "stt"

	// CategoryTTS is text-to-speech synthesis.
	CategoryTTS Category = "tts"

	// CategoryChat is chat completion.
	CategoryChat Category = "chat"
)

// Categories lists every capability category in a stable order.
var Categories = []Category{CategorySTT, CategoryTTS, CategoryChat}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategorySTT, CategoryTTS, CategoryChat:
		return true
	}
	return false
}

// ModelDescriptor is an immutable snapshot of one provider-reported model.
type ModelDescriptor struct {
	// ID is the provider's model identifier (e.g., "whisper-large-v3").
	ID string `json:"id"`

	// Categories lists the capability categories the model was classified into.
	// Empty means the model is not usable by Rehearse.
	Categories []Category `json:"categories"`

	// Active is false for models the provider reports as deprecated or disabled.
	Active bool `json:"active"`

	// CreatedAt is the provider-reported creation time. Zero if unknown.
	CreatedAt time.Time `json:"created_at"`

	// ContextWindow is the maximum input+output token count. Zero if unknown.
	ContextWindow int `json:"context_window,omitempty"`

	// MaxOutputTokens is the maximum completion length. Zero if unknown.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// OwnedBy is the organisation that publishes the model.
	OwnedBy string `json:"owned_by,omitempty"`
}

// HasCategory reports whether the model was classified into c.
func (m ModelDescriptor) HasCategory(c Category) bool {
	for _, have := range m.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// Role identifies the speaker of a [ConversationMessage].
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// ConversationMessage is one utterance in an interview transcript. Messages
// are append-only; slice order is conversational order.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Duration is the spoken length of the utterance when known (candidate
	// recordings). Zero otherwise.
	Duration time.Duration `json:"duration,omitempty"`
}

// CountRole returns how many messages in msgs were spoken by role.
func CountRole(msgs []ConversationMessage, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Difficulty selects how demanding the interviewer is: tone, follow-up
// pressure and silence tolerance.
type Difficulty string

const (
	DifficultyRelaxed  Difficulty = "relaxed"
	DifficultyStandard Difficulty = "standard"
	DifficultyIntense  Difficulty = "intense"
)

// IsValid reports whether d is a known difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyRelaxed, DifficultyStandard, DifficultyIntense:
		return true
	}
	return false
}

// RoleContext describes the position being interviewed for. Every field is
// optional; the interviewer prompt omits what is empty.
type RoleContext struct {
	Title      string   `json:"title,omitempty"`
	Company    string   `json:"company,omitempty"`
	Seniority  string   `json:"seniority,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`

	// ResumeSummary and JobDescriptionSummary are pre-extracted plain text.
	ResumeSummary         string `json:"resume_summary,omitempty"`
	JobDescriptionSummary string `json:"job_description_summary,omitempty"`

	// SeedQuestions are candidate questions the interviewer may draw from.
	SeedQuestions []string `json:"seed_questions,omitempty"`
}
