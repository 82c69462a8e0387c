package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/pkg/provider/tts"
	"github.com/MrWong99/rehearse/pkg/types"
)

// MaxSpeechChars bounds the text of one synthesis request.
const MaxSpeechChars = 4096

var errNoAudio = errors.New("provider returned no audio")

// Speech is the result of [Synthesizer.Synthesize].
type Speech struct {
	Audio       []byte
	Format      tts.Format
	Model       string
	WasDegraded bool
}

// Synthesizer renders interviewer text as audio.
type Synthesizer struct {
	exec     *resilience.Executor
	provider tts.Provider
	voice    string
	format   tts.Format
	speed    float64
}

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithVoice sets the provider voice name.
func WithVoice(v string) SynthesizerOption {
	return func(s *Synthesizer) { s.voice = v }
}

// WithFormat sets the output container. Default: mp3.
func WithFormat(f tts.Format) SynthesizerOption {
	return func(s *Synthesizer) { s.format = f }
}

// WithSpeed sets the speaking rate. Zero keeps the provider default.
func WithSpeed(speed float64) SynthesizerOption {
	return func(s *Synthesizer) { s.speed = speed }
}

// NewSynthesizer returns a Synthesizer calling p through exec.
func NewSynthesizer(exec *resilience.Executor, p tts.Provider, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{exec: exec, provider: p, format: tts.FormatMP3}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize renders text with the best available model. When every model
// fails the error satisfies [UseDeviceVoice].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid(ReasonTextEmpty, "There was nothing to say.", "empty text")
	}
	if n := utf8.RuneCountInString(text); n > MaxSpeechChars {
		return nil, invalid(ReasonTextTooLong,
			"That message is too long to read aloud.",
			"%d characters, maximum %d", n, MaxSpeechChars)
	}

	res, err := resilience.Execute(ctx, s.exec, types.CategoryTTS,
		func(ctx context.Context, model string) (*tts.Speech, error) {
			sp, err := s.provider.Synthesize(ctx, tts.Request{
				Model:  model,
				Text:   text,
				Voice:  s.voice,
				Format: s.format,
				Speed:  s.speed,
			})
			if err == nil && (sp == nil || len(sp.Audio) == 0) {
				err = errNoAudio
			}
			return sp, err
		}, nil)
	if err != nil {
		return nil, fmt.Errorf("capability: synthesize: %w", err)
	}

	format := res.Data.Format
	if format == "" {
		format = s.format
	}
	return &Speech{
		Audio:       res.Data.Audio,
		Format:      format,
		Model:       res.Model,
		WasDegraded: res.WasDegraded,
	}, nil
}
