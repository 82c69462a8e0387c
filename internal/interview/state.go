// Package interview drives one spoken interview: record, transcribe, generate
// a reply, synthesize, play, and around again until the question budget is
// spent.
//
// The rules live in [Rules.Step], a pure function from a [State] and an
// [Event] to the next State and the [Effect]s to carry out. [Machine] owns an
// event queue, executes effects (capability calls run in goroutines and post
// their results back as events), owns the timers, and reports every new state
// to an [Observer].
//
// Every phase entry bumps State.Epoch. Timers and asynchronous results carry
// the epoch they were started under, and Step drops any that do not match, so
// a timer can never fire into a phase other than the one that started it.
package interview

import (
	"time"

	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/pkg/types"
)

// Phase is the coarse position of an interview in its lifecycle.
type Phase string

const (
	PhaseInitializing        Phase = "initializing"
	PhaseInterviewerSpeaking Phase = "interviewer_speaking"
	PhaseWaiting             Phase = "waiting_for_candidate"
	PhaseCandidateSpeaking   Phase = "candidate_speaking"
	PhaseProcessing          Phase = "processing"
	PhaseEnding              Phase = "ending"
	PhaseEnded               Phase = "ended"
	PhaseError               Phase = "error"
)

// SilenceLevel escalates while the candidate stays quiet.
type SilenceLevel string

const (
	SilenceNone     SilenceLevel = ""
	SilenceWarning  SilenceLevel = "warning"
	SilenceCritical SilenceLevel = "critical"
)

// User-facing notices.
const (
	NoticeRecordingTooShort = "That recording was too short. Hold the button a little longer and try again."
	NoticeEmptyTranscript   = "We couldn't hear an answer in that recording. Please try again."
	NoticeOffline           = "You're offline. Recording will be available again once your connection is back."
	NoticeBudgetReached     = "That was the final question. Wrapping up your interview."
	MessageCompletionFailed = "Your answers were saved, but we couldn't finish submitting your interview. Please retry."
)

// State is the full machine state. Messages must be treated as immutable:
// Step never appends in place.
type State struct {
	Phase          Phase                       `json:"phase"`
	Messages       []types.ConversationMessage `json:"messages"`
	CandidateTurns int                         `json:"candidate_turns"`
	Progress       int                         `json:"progress"`

	// Online and Muted are overlays; they never change Phase by themselves.
	Online bool `json:"online"`
	Muted  bool `json:"muted"`

	Silence SilenceLevel `json:"silence,omitempty"`

	// Degraded is true when the latest capability result was served by a
	// lower-ranked model.
	Degraded bool `json:"degraded"`

	// Closing marks the utterance being spoken as the interview's last.
	Closing bool `json:"closing,omitempty"`

	// ErrorMessage and TranscriptPreserved describe the error phase.
	ErrorMessage        string `json:"error_message,omitempty"`
	TranscriptPreserved bool   `json:"transcript_preserved,omitempty"`

	// Interrupted is the phase the error phase interrupted.
	Interrupted Phase `json:"-"`

	// CompletionAttempt is the number of the completion try in flight.
	CompletionAttempt int `json:"-"`

	Epoch uint64 `json:"-"`
}

// NewState returns the initial state of a fresh interview.
func NewState() State {
	return State{Phase: PhaseInitializing, Online: true}
}

// Rules holds the per-interview parameters Step needs.
type Rules struct {
	// QuestionBudget is the number of candidate answers after which the
	// interview ends. Zero means unlimited.
	QuestionBudget int

	// ExpectedQuestions drives Progress. Defaults to QuestionBudget.
	ExpectedQuestions int

	Profile Profile

	// MinRecordingBytes and MinRecordingDuration reject accidental taps.
	MinRecordingBytes    int
	MinRecordingDuration time.Duration

	// Completion is the retry schedule of the completion call.
	Completion resilience.Backoff
}

// Step applies ev to s. It is pure: the same inputs always yield the same
// outputs and nothing outside the return values is touched.
func (r Rules) Step(s State, ev Event) (State, []Effect) {
	if s.Phase == PhaseEnded {
		return s, nil
	}

	switch ev := ev.(type) {
	case Start:
		return r.onStart(s, ev)
	case ReplyReady:
		return r.onReplyReady(s, ev)
	case ReplyFailed:
		return r.onReplyFailed(s, ev)
	case PlaybackDone:
		if s.Phase != PhaseInterviewerSpeaking || ev.Epoch != s.Epoch {
			return s, nil
		}
		return r.afterSpeech(s)
	case StartRecording:
		return r.onStartRecording(s)
	case StopRecording:
		return r.onStopRecording(s, ev)
	case AutoStop:
		if s.Phase != PhaseCandidateSpeaking || ev.Epoch != s.Epoch {
			return s, nil
		}
		return s, []Effect{ForceStopRecording{}}
	case SilenceTick:
		if s.Phase != PhaseWaiting || ev.Epoch != s.Epoch {
			return s, nil
		}
		s.Silence = ev.Level
		return s, nil
	case Transcribed:
		return r.onTranscribed(s, ev)
	case TranscribeFailed:
		if s.Phase != PhaseProcessing || ev.Epoch != s.Epoch {
			return s, nil
		}
		s, eff := r.enter(s, PhaseWaiting)
		return s, append(eff, Notify{Text: ev.Message})
	case Completed:
		if s.Phase != PhaseEnding || ev.Epoch != s.Epoch {
			return s, nil
		}
		s, eff := r.enter(s, PhaseEnded)
		return s, append(eff, ClearSnapshot{})
	case CompleteFailed:
		return r.onCompleteFailed(s, ev)
	case Retry:
		return r.onRetry(s)
	case Network:
		s.Online = ev.Online
		return s, nil
	case Mute:
		s.Muted = ev.Muted
		if ev.Muted && s.Phase == PhaseInterviewerSpeaking {
			s, eff := r.afterSpeech(s)
			return s, append([]Effect{CancelSpeech{}}, eff...)
		}
		return s, nil
	case Leave:
		return r.onLeave(s)
	}
	return s, nil
}

func (r Rules) onStart(s State, ev Start) (State, []Effect) {
	if s.Phase != PhaseInitializing || len(s.Messages) > 0 {
		return s, nil
	}
	if len(ev.Recovered) == 0 {
		s.Epoch++
		return s, []Effect{GenerateReply{Epoch: s.Epoch}}
	}

	s = r.withMessages(s, ev.Recovered)
	if r.budgetReached(s) {
		return r.enter(s, PhaseEnding)
	}
	return r.enter(s, PhaseWaiting)
}

func (r Rules) onReplyReady(s State, ev ReplyReady) (State, []Effect) {
	if (s.Phase != PhaseInitializing && s.Phase != PhaseProcessing) || ev.Epoch != s.Epoch {
		return s, nil
	}
	msg := types.ConversationMessage{
		Role:      types.RoleInterviewer,
		Content:   ev.Text,
		Timestamp: ev.At,
	}
	s = r.withMessages(s, append(s.Messages[:len(s.Messages):len(s.Messages)], msg))
	s.Closing = ev.IsClosing
	s.Degraded = ev.WasDegraded

	s, eff := r.enter(s, PhaseInterviewerSpeaking)
	eff = append(eff, PersistSnapshot{Messages: s.Messages})
	if s.Muted {
		s, more := r.afterSpeech(s)
		return s, append(eff, more...)
	}
	return s, append(eff, Speak{Epoch: s.Epoch, Text: ev.Text})
}

func (r Rules) onReplyFailed(s State, ev ReplyFailed) (State, []Effect) {
	if (s.Phase != PhaseInitializing && s.Phase != PhaseProcessing) || ev.Epoch != s.Epoch {
		return s, nil
	}
	return r.fail(s, ev.Message, false)
}

// afterSpeech leaves interviewer_speaking once the utterance is over.
func (r Rules) afterSpeech(s State) (State, []Effect) {
	if s.Closing {
		return r.enter(s, PhaseEnding)
	}
	return r.enter(s, PhaseWaiting)
}

func (r Rules) onStartRecording(s State) (State, []Effect) {
	if s.Phase != PhaseWaiting {
		return s, nil
	}
	if !s.Online {
		return s, []Effect{Notify{Text: NoticeOffline}}
	}
	return r.enter(s, PhaseCandidateSpeaking)
}

func (r Rules) onStopRecording(s State, ev StopRecording) (State, []Effect) {
	if s.Phase != PhaseCandidateSpeaking {
		return s, nil
	}
	tooSmall := len(ev.Audio) < r.MinRecordingBytes
	tooBrief := ev.Duration > 0 && ev.Duration < r.MinRecordingDuration
	if tooSmall || tooBrief {
		s, eff := r.enter(s, PhaseWaiting)
		return s, append(eff, Notify{Text: NoticeRecordingTooShort})
	}
	s, eff := r.enter(s, PhaseProcessing)
	return s, append(eff, Transcribe{
		Epoch:    s.Epoch,
		Audio:    ev.Audio,
		MIMEType: ev.MIMEType,
		Duration: ev.Duration,
	})
}

func (r Rules) onTranscribed(s State, ev Transcribed) (State, []Effect) {
	if s.Phase != PhaseProcessing || ev.Epoch != s.Epoch {
		return s, nil
	}
	if ev.Text == "" {
		s, eff := r.enter(s, PhaseWaiting)
		return s, append(eff, Notify{Text: NoticeEmptyTranscript})
	}

	msg := types.ConversationMessage{
		Role:      types.RoleCandidate,
		Content:   ev.Text,
		Timestamp: ev.At,
		Duration:  ev.Duration,
	}
	s = r.withMessages(s, append(s.Messages[:len(s.Messages):len(s.Messages)], msg))
	s.Degraded = ev.WasDegraded
	eff := []Effect{PersistSnapshot{Messages: s.Messages}}

	if r.budgetReached(s) {
		s, more := r.enter(s, PhaseEnding)
		return s, append(append(eff, Notify{Text: NoticeBudgetReached}), more...)
	}
	return s, append(eff, GenerateReply{Epoch: s.Epoch, History: s.Messages})
}

func (r Rules) onCompleteFailed(s State, ev CompleteFailed) (State, []Effect) {
	if s.Phase != PhaseEnding || ev.Epoch != s.Epoch || ev.Attempt != s.CompletionAttempt {
		return s, nil
	}
	if next := ev.Attempt + 1; next <= r.Completion.MaxAttempts() {
		s.CompletionAttempt = next
		return s, []Effect{Complete{
			Epoch:    s.Epoch,
			Attempt:  next,
			Delay:    r.Completion.Delay(next),
			Messages: s.Messages,
		}}
	}
	return r.fail(s, MessageCompletionFailed, true)
}

func (r Rules) onRetry(s State) (State, []Effect) {
	if s.Phase != PhaseError {
		return s, nil
	}
	if !s.Online {
		return s, []Effect{Notify{Text: NoticeOffline}}
	}
	interrupted := s.Interrupted
	s.ErrorMessage = ""
	s.TranscriptPreserved = false
	s.Interrupted = ""

	switch {
	case len(s.Messages) == 0:
		s, eff := r.enter(s, PhaseInitializing)
		return s, append(eff, GenerateReply{Epoch: s.Epoch})
	case interrupted == PhaseEnding || r.budgetReached(s):
		return r.enter(s, PhaseEnding)
	case interrupted == PhaseProcessing && s.Messages[len(s.Messages)-1].Role == types.RoleCandidate:
		s, eff := r.enter(s, PhaseProcessing)
		return s, append(eff, GenerateReply{Epoch: s.Epoch, History: s.Messages})
	default:
		return r.enter(s, PhaseWaiting)
	}
}

func (r Rules) onLeave(s State) (State, []Effect) {
	// A submission in flight finishes on its own.
	if s.Phase == PhaseEnding {
		return s, nil
	}
	// A finished interview whose submission failed is not abandoned. Its
	// snapshot stays so the next connection resumes into ending.
	if s.Phase == PhaseError && s.Interrupted == PhaseEnding {
		return r.enter(s, PhaseEnded)
	}
	var pre []Effect
	if s.Phase == PhaseInterviewerSpeaking {
		pre = append(pre, CancelSpeech{})
	}
	s, eff := r.enter(s, PhaseEnded)
	eff = append(pre, eff...)
	return s, append(eff, Abandon{Messages: s.Messages})
}

// fail moves to the error phase, remembering what was interrupted.
func (r Rules) fail(s State, msg string, preserved bool) (State, []Effect) {
	from := s.Phase
	s, eff := r.enter(s, PhaseError)
	s.Interrupted = from
	s.ErrorMessage = msg
	s.TranscriptPreserved = preserved
	return s, eff
}

// enter performs the exit actions of the current phase and the entry actions
// of p, and bumps the epoch.
func (r Rules) enter(s State, p Phase) (State, []Effect) {
	var eff []Effect
	switch s.Phase {
	case PhaseWaiting:
		eff = append(eff, CancelSilenceTimer{})
	case PhaseCandidateSpeaking:
		eff = append(eff, CancelAutoStop{})
	case PhaseProcessing:
		eff = append(eff, StopThinking{})
	}

	s.Phase = p
	s.Epoch++
	s.Silence = SilenceNone

	switch p {
	case PhaseWaiting:
		s.Closing = false
		eff = append(eff, StartSilenceTimer{
			Epoch:    s.Epoch,
			Warning:  r.Profile.SilenceWarning,
			Critical: r.Profile.SilenceCritical,
		})
	case PhaseCandidateSpeaking:
		if r.Profile.AutoStop > 0 {
			eff = append(eff, StartAutoStop{Epoch: s.Epoch, After: r.Profile.AutoStop})
		}
	case PhaseProcessing:
		eff = append(eff, StartThinking{})
	case PhaseEnding:
		s.CompletionAttempt = 1
		eff = append(eff, Complete{Epoch: s.Epoch, Attempt: 1, Messages: s.Messages})
	}
	return s, eff
}

// withMessages sets the transcript and recomputes the derived counters.
func (r Rules) withMessages(s State, msgs []types.ConversationMessage) State {
	s.Messages = msgs
	s.CandidateTurns = types.CountRole(msgs, types.RoleCandidate)
	s.Progress = r.progress(s.CandidateTurns)
	return s
}

func (r Rules) budgetReached(s State) bool {
	return r.QuestionBudget > 0 && s.CandidateTurns >= r.QuestionBudget
}

// progress maps candidate turns to 0..100.
func (r Rules) progress(turns int) int {
	expected := r.ExpectedQuestions
	if expected <= 0 {
		expected = r.QuestionBudget
	}
	if expected <= 0 {
		return 0
	}
	return min(100, turns*100/expected)
}
