package interview

import (
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

// Event is an input to [Rules.Step]. Client events come from the transport;
// the rest are posted by the [Machine] when timers fire or asynchronous
// effects settle, tagged with the epoch they were started under.
type Event interface{ isEvent() }

// ─── Client events ────────────────────────────────────────────────────────────

// Start begins the interview. Recovered holds a restored transcript, if any.
type Start struct{ Recovered []types.ConversationMessage }

// StartRecording is the candidate pressing "start speaking".
type StartRecording struct{}

// StopRecording delivers the finished recording.
type StopRecording struct {
	Audio    []byte
	MIMEType string

	// Duration is client-measured. Zero means unknown.
	Duration time.Duration
}

// Retry is the candidate pressing "retry" in the error phase.
type Retry struct{}

// Network reports connectivity changes of the client.
type Network struct{ Online bool }

// Mute toggles interviewer audio.
type Mute struct{ Muted bool }

// Leave abandons the interview.
type Leave struct{}

// ─── Internal events ──────────────────────────────────────────────────────────

// ReplyReady carries a generated interviewer utterance.
type ReplyReady struct {
	Epoch       uint64
	Text        string
	IsClosing   bool
	WasDegraded bool
	At          time.Time
}

// ReplyFailed reports reply generation exhaustion. Message is user-facing.
type ReplyFailed struct {
	Epoch   uint64
	Message string
}

// PlaybackDone reports that the interviewer utterance finished playing,
// by whatever voice.
type PlaybackDone struct{ Epoch uint64 }

// AutoStop fires when an intense-mode recording hits its ceiling.
type AutoStop struct{ Epoch uint64 }

// SilenceTick escalates the silence level while waiting.
type SilenceTick struct {
	Epoch uint64
	Level SilenceLevel
}

// Transcribed carries the candidate's transcribed answer.
type Transcribed struct {
	Epoch       uint64
	Text        string
	Duration    time.Duration
	WasDegraded bool
	At          time.Time
}

// TranscribeFailed reports a rejected or unprocessable recording. Message is
// user-facing.
type TranscribeFailed struct {
	Epoch   uint64
	Message string
}

// Completed reports a successful completion submission.
type Completed struct{ Epoch uint64 }

// CompleteFailed reports a failed completion submission.
type CompleteFailed struct {
	Epoch   uint64
	Attempt int
}

func (Start) isEvent()            {}
func (StartRecording) isEvent()   {}
func (StopRecording) isEvent()    {}
func (Retry) isEvent()            {}
func (Network) isEvent()          {}
func (Mute) isEvent()             {}
func (Leave) isEvent()            {}
func (ReplyReady) isEvent()       {}
func (ReplyFailed) isEvent()      {}
func (PlaybackDone) isEvent()     {}
func (AutoStop) isEvent()         {}
func (SilenceTick) isEvent()      {}
func (Transcribed) isEvent()      {}
func (TranscribeFailed) isEvent() {}
func (Completed) isEvent()        {}
func (CompleteFailed) isEvent()   {}

// Effect is an action requested by [Rules.Step] and carried out by the
// [Machine].
type Effect interface{ isEffect() }

// GenerateReply asks for the next interviewer utterance.
type GenerateReply struct {
	Epoch   uint64
	History []types.ConversationMessage
}

// Speak plays Text as the interviewer.
type Speak struct {
	Epoch uint64
	Text  string
}

// CancelSpeech stops any interviewer audio in progress.
type CancelSpeech struct{}

// StartSilenceTimer arms the warning and critical silence timers.
type StartSilenceTimer struct {
	Epoch             uint64
	Warning, Critical time.Duration
}

// CancelSilenceTimer disarms the silence timers.
type CancelSilenceTimer struct{}

// StartAutoStop arms the recording ceiling.
type StartAutoStop struct {
	Epoch uint64
	After time.Duration
}

// CancelAutoStop disarms the recording ceiling.
type CancelAutoStop struct{}

// ForceStopRecording asks the client to stop and submit its recording.
type ForceStopRecording struct{}

// Transcribe transcribes a recording.
type Transcribe struct {
	Epoch    uint64
	Audio    []byte
	MIMEType string
	Duration time.Duration
}

// StartThinking starts rotating the "thinking" messages.
type StartThinking struct{}

// StopThinking stops rotating the "thinking" messages.
type StopThinking struct{}

// PersistSnapshot saves the transcript for recovery.
type PersistSnapshot struct{ Messages []types.ConversationMessage }

// ClearSnapshot deletes the recovery snapshot.
type ClearSnapshot struct{}

// Complete submits the transcript as completed after Delay.
type Complete struct {
	Epoch    uint64
	Attempt  int
	Delay    time.Duration
	Messages []types.ConversationMessage
}

// Abandon records the transcript and marks the interview abandoned.
type Abandon struct{ Messages []types.ConversationMessage }

// Notify shows an inline message to the candidate.
type Notify struct{ Text string }

func (GenerateReply) isEffect()      {}
func (Speak) isEffect()              {}
func (CancelSpeech) isEffect()       {}
func (StartSilenceTimer) isEffect()  {}
func (CancelSilenceTimer) isEffect() {}
func (StartAutoStop) isEffect()      {}
func (CancelAutoStop) isEffect()     {}
func (ForceStopRecording) isEffect() {}
func (Transcribe) isEffect()         {}
func (StartThinking) isEffect()      {}
func (StopThinking) isEffect()       {}
func (PersistSnapshot) isEffect()    {}
func (ClearSnapshot) isEffect()      {}
func (Complete) isEffect()           {}
func (Abandon) isEffect()            {}
func (Notify) isEffect()             {}
