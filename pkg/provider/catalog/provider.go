// Package catalog defines the Source interface for provider model catalogues.
//
// A Source lists the models a provider currently exposes. Providers differ in
// how much metadata they report: the OpenAI API only returns id, creation time
// and owner, while OpenAI-compatible services such as Groq add an active flag
// and the context window. Fields a provider does not report are left at their
// zero value (or nil for Active) and the ranking layer treats them as unknown.
package catalog

import (
	"context"
	"time"
)

// RawModel is one entry of a provider's model listing, before classification.
type RawModel struct {
	// ID is the provider's model identifier.
	ID string

	// Created is the provider-reported creation time. Zero if unknown.
	Created time.Time

	// OwnedBy is the publishing organisation.
	OwnedBy string

	// Active is nil when the provider does not report activity status.
	Active *bool

	// ContextWindow is the maximum token window. Zero if unknown.
	ContextWindow int

	// MaxOutputTokens is the maximum completion length. Zero if unknown.
	MaxOutputTokens int

	// Capabilities lists declared capability tags (e.g., "transcription",
	// "speech", "chat") when the provider reports them.
	Capabilities []string
}

// IsActive reports whether the model is active, treating unknown as active.
func (m RawModel) IsActive() bool {
	return m.Active == nil || *m.Active
}

// Source lists the models a provider exposes.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// ListModels fetches the provider's current model catalogue.
	ListModels(ctx context.Context) ([]RawModel, error)
}
