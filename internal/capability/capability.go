// Package capability holds the three capability adapters the interview loop
// calls: [Transcriber], [Synthesizer] and [ReplyGenerator].
//
// Each adapter validates its input, runs the provider call through the
// Fallback Executor for its category, and converts the result into interview
// domain types annotated with the serving model and whether the request was
// degraded. Input problems are reported as *[ValidationError] before any
// provider is called; exhaustion is reported as *[resilience.DegradedError].
package capability

import (
	"errors"
	"fmt"

	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/pkg/types"
)

// Validation reasons.
const (
	ReasonAudioTooShort = "audio_too_short"
	ReasonAudioTooLong  = "audio_too_long"
	ReasonTextEmpty     = "text_empty"
	ReasonTextTooLong   = "text_too_long"
)

// ValidationError reports input rejected before any provider call. It never
// counts as provider degradation.
type ValidationError struct {
	Reason          string
	FriendlyMessage string
	detail          string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("capability: invalid input (%s): %s", e.Reason, e.detail)
}

func invalid(reason, friendly, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, FriendlyMessage: friendly, detail: fmt.Sprintf(format, args...)}
}

// FriendlyMessage returns the user-facing text for err. Validation and
// degraded errors carry their own message; anything else maps to a generic
// one so that provider error text never reaches users.
func FriendlyMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.FriendlyMessage
	}
	var de *resilience.DegradedError
	if errors.As(err, &de) {
		return de.FriendlyMessage
	}
	return "Something went wrong. Please try again."
}

// UseDeviceVoice reports whether err means speech synthesis is exhausted and
// the caller should speak the text with the on-device voice instead.
func UseDeviceVoice(err error) bool {
	var de *resilience.DegradedError
	return errors.As(err, &de) && de.Category == types.CategoryTTS
}
