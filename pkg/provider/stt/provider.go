// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., OpenAI Whisper or
// Groq's hosted Whisper models) and exposes a uniform request/response
// interface: one recorded clip in, one transcript out. Each request names the
// model it targets so that the fallback executor can walk the ranked model
// list against a single Provider.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Request describes one recorded clip to transcribe.
type Request struct {
	// Model is the provider model identifier (e.g., "whisper-large-v3-turbo").
	Model string

	// Audio is the encoded recording (webm/opus, wav, mp3, ...). Codec details
	// are the provider's concern.
	Audio []byte

	// Filename is sent to providers that sniff the container from the name.
	// Defaults to "recording.webm" when empty.
	Filename string

	// MIMEType is the content type of Audio (e.g., "audio/webm").
	MIMEType string

	// Language is an optional ISO-639-1 hint (e.g., "en").
	Language string

	// Prompt is optional vocabulary context that improves recognition of
	// domain terms (company names, technologies).
	Prompt string
}

// Transcription is the result of a successful transcription call.
type Transcription struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the detected or requested language, if reported.
	Language string

	// Duration is the audio length reported by the provider. Zero when the
	// provider does not report it.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends req.Audio to the model named in req.Model and returns the
	// transcript. Returns an error if the provider cannot be reached, rejects
	// the request, or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (*Transcription, error)
}
