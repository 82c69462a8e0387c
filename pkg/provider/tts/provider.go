// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI speech models
// or Groq-hosted PlayAI voices) and turns one block of text into one encoded
// audio blob. Each request names the model it targets so that the fallback
// executor can walk the ranked model list against a single Provider.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Format is the audio container returned by a synthesis call.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOpus Format = "opus"
)

// Request describes one block of text to synthesise.
type Request struct {
	// Model is the provider model identifier (e.g., "gpt-4o-mini-tts").
	Model string

	// Text is the text to speak.
	Text string

	// Voice is the provider-specific voice name (e.g., "alloy").
	Voice string

	// Format is the desired output container. Providers fall back to their
	// default when empty.
	Format Format

	// Speed adjusts speaking rate (0.25–4.0, 1.0 = default). Zero means default.
	Speed float64
}

// Speech is the result of a successful synthesis call.
type Speech struct {
	// Audio holds the encoded audio bytes.
	Audio []byte

	// Format is the container of Audio.
	Format Format
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text with the model named in req.Model. Returns an
	// error if the provider rejects the request, returns an empty body, or ctx is
	// cancelled.
	Synthesize(ctx context.Context, req Request) (*Speech, error)
}
