package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/pkg/provider/stt"
	"github.com/MrWong99/rehearse/pkg/types"
)

// Audio size bounds for transcription.
const (
	MinAudioBytes = 1000
	MaxAudioBytes = 25 << 20
)

// Clip is one recorded candidate answer.
type Clip struct {
	Audio    []byte
	MIMEType string

	// Duration is the client-measured recording length.
	Duration time.Duration

	// OnRetry, if set, is told when a lower-ranked model is being tried.
	OnRetry func(msg string, attempt int)
}

var errNoTranscription = errors.New("provider returned no transcription")

// Transcription is the result of [Transcriber.Transcribe].
type Transcription struct {
	// Text is the trimmed transcript. It may be empty when the clip held no
	// speech.
	Text            string
	DurationSeconds float64
	Model           string
	WasDegraded     bool
}

// Transcriber converts recorded audio to text.
type Transcriber struct {
	exec     *resilience.Executor
	provider stt.Provider
	language string
	prompt   string
}

// TranscriberOption configures a [Transcriber].
type TranscriberOption func(*Transcriber)

// WithLanguage sets the BCP-47 language hint passed to every request.
func WithLanguage(lang string) TranscriberOption {
	return func(t *Transcriber) { t.language = lang }
}

// WithVocabularyPrompt sets a prompt that biases recognition towards
// interview vocabulary.
func WithVocabularyPrompt(p string) TranscriberOption {
	return func(t *Transcriber) { t.prompt = p }
}

// NewTranscriber returns a Transcriber calling p through exec.
func NewTranscriber(exec *resilience.Executor, p stt.Provider, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{exec: exec, provider: p}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe validates clip and transcribes it with the best available model.
func (t *Transcriber) Transcribe(ctx context.Context, clip Clip) (*Transcription, error) {
	switch n := len(clip.Audio); {
	case n < MinAudioBytes:
		return nil, invalid(ReasonAudioTooShort,
			"That recording was too short. Hold the button a little longer and try again.",
			"%d bytes, minimum %d", n, MinAudioBytes)
	case n > MaxAudioBytes:
		return nil, invalid(ReasonAudioTooLong,
			"That answer was too long to process. Please keep answers under a few minutes.",
			"%d bytes, maximum %d", n, MaxAudioBytes)
	}

	res, err := resilience.Execute(ctx, t.exec, types.CategorySTT,
		func(ctx context.Context, model string) (*stt.Transcription, error) {
			tr, err := t.provider.Transcribe(ctx, stt.Request{
				Model:    model,
				Audio:    clip.Audio,
				MIMEType: clip.MIMEType,
				Language: t.language,
				Prompt:   t.prompt,
			})
			if err == nil && tr == nil {
				err = errNoTranscription
			}
			return tr, err
		}, clip.OnRetry)
	if err != nil {
		return nil, fmt.Errorf("capability: transcribe: %w", err)
	}

	dur := res.Data.Duration
	if dur <= 0 {
		dur = clip.Duration
	}
	return &Transcription{
		Text:            strings.TrimSpace(res.Data.Text),
		DurationSeconds: dur.Seconds(),
		Model:           res.Model,
		WasDegraded:     res.WasDegraded,
	}, nil
}
