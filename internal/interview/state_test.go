package interview

import (
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testRules(budget int) Rules {
	return Rules{
		QuestionBudget:       budget,
		Profile:              DefaultProfiles[types.DifficultyStandard],
		MinRecordingBytes:    1000,
		MinRecordingDuration: 500 * time.Millisecond,
	}
}

// find returns the first effect of type T in effs.
func find[T Effect](effs []Effect) (T, bool) {
	for _, e := range effs {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func mustFind[T Effect](t *testing.T, effs []Effect) T {
	t.Helper()
	v, ok := find[T](effs)
	if !ok {
		t.Fatalf("effects %#v: missing %T", effs, v)
	}
	return v
}

func mustNotFind[T Effect](t *testing.T, effs []Effect) {
	t.Helper()
	if v, ok := find[T](effs); ok {
		t.Fatalf("effects %#v: unexpected %T", effs, v)
	}
}

func wantPhase(t *testing.T, s State, p Phase) {
	t.Helper()
	if s.Phase != p {
		t.Fatalf("Phase = %q, want %q", s.Phase, p)
	}
}

// waiting drives a fresh state to waiting_for_candidate after one
// interviewer question.
func waiting(t *testing.T, r Rules) State {
	t.Helper()
	s, eff := r.Step(NewState(), Start{})
	gen := mustFind[GenerateReply](t, eff)
	s, eff = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Tell me about yourself.", At: t0})
	speak := mustFind[Speak](t, eff)
	s, _ = r.Step(s, PlaybackDone{Epoch: speak.Epoch})
	wantPhase(t, s, PhaseWaiting)
	return s
}

// answer records and transcribes one candidate answer from waiting.
func answer(t *testing.T, r Rules, s State, text string) (State, []Effect) {
	t.Helper()
	s, _ = r.Step(s, StartRecording{})
	wantPhase(t, s, PhaseCandidateSpeaking)
	s, eff := r.Step(s, StopRecording{Audio: make([]byte, 4000), Duration: 3 * time.Second})
	wantPhase(t, s, PhaseProcessing)
	tr := mustFind[Transcribe](t, eff)
	return r.Step(s, Transcribed{Epoch: tr.Epoch, Text: text, At: t0.Add(time.Minute), Duration: 3 * time.Second})
}

func TestStep_FreshStartRequestsOpeningQuestion(t *testing.T) {
	r := testRules(3)
	s, eff := r.Step(NewState(), Start{})

	wantPhase(t, s, PhaseInitializing)
	gen := mustFind[GenerateReply](t, eff)
	if len(gen.History) != 0 {
		t.Errorf("History = %d messages, want 0", len(gen.History))
	}
	if gen.Epoch != s.Epoch {
		t.Errorf("GenerateReply.Epoch = %d, want %d", gen.Epoch, s.Epoch)
	}

	// A second Start is ignored.
	again, eff := r.Step(s, Start{})
	if again.Epoch != s.Epoch || len(eff) != 0 {
		t.Errorf("second Start changed state or emitted %v", eff)
	}
}

func TestStep_ReplyReadySpeaksAndPersists(t *testing.T) {
	r := testRules(3)
	s, eff := r.Step(NewState(), Start{})
	gen := mustFind[GenerateReply](t, eff)

	before := s
	s, eff = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Hello, tell me about yourself.", At: t0, WasDegraded: true})

	wantPhase(t, s, PhaseInterviewerSpeaking)
	if len(s.Messages) != 1 || s.Messages[0].Role != types.RoleInterviewer {
		t.Fatalf("Messages = %+v", s.Messages)
	}
	if len(before.Messages) != 0 {
		t.Error("Step modified the input state")
	}
	if !s.Degraded {
		t.Error("Degraded = false, want true")
	}
	speak := mustFind[Speak](t, eff)
	if speak.Text != "Hello, tell me about yourself." || speak.Epoch != s.Epoch {
		t.Errorf("Speak = %+v", speak)
	}
	snap := mustFind[PersistSnapshot](t, eff)
	if len(snap.Messages) != 1 {
		t.Errorf("PersistSnapshot.Messages = %d, want 1", len(snap.Messages))
	}
}

func TestStep_StaleAsyncResultsAreIgnored(t *testing.T) {
	r := testRules(3)
	s, eff := r.Step(NewState(), Start{})
	gen := mustFind[GenerateReply](t, eff)
	s, eff = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Q1?", At: t0})
	speak := mustFind[Speak](t, eff)

	for _, ev := range []Event{
		ReplyReady{Epoch: gen.Epoch, Text: "duplicate"},
		PlaybackDone{Epoch: speak.Epoch - 1},
		Transcribed{Epoch: speak.Epoch, Text: "not processing"},
		Completed{Epoch: speak.Epoch},
	} {
		next, eff := r.Step(s, ev)
		if !reflect.DeepEqual(next, s) || len(eff) != 0 {
			t.Errorf("%T: state changed or effects %v", ev, eff)
		}
	}
}

func TestStep_SilenceTimerResetsOnEveryEntry(t *testing.T) {
	r := testRules(3)
	s := waiting(t, r)
	first := s.Epoch

	// Leave waiting with a too-short recording and come back.
	s, _ = r.Step(s, StartRecording{})
	s, eff := r.Step(s, StopRecording{Audio: make([]byte, 500)})
	wantPhase(t, s, PhaseWaiting)
	timer := mustFind[StartSilenceTimer](t, eff)
	if timer.Epoch == first {
		t.Fatal("re-entering waiting kept the old epoch")
	}
	if timer.Warning != 25*time.Second || timer.Critical != 50*time.Second {
		t.Errorf("timer = %v/%v, want 25s/50s", timer.Warning, timer.Critical)
	}

	stale, eff := r.Step(s, SilenceTick{Epoch: first, Level: SilenceWarning})
	if stale.Silence != SilenceNone || len(eff) != 0 {
		t.Errorf("stale SilenceTick applied: Silence = %q", stale.Silence)
	}

	s, _ = r.Step(s, SilenceTick{Epoch: s.Epoch, Level: SilenceWarning})
	if s.Silence != SilenceWarning {
		t.Errorf("Silence = %q, want warning", s.Silence)
	}
	s, _ = r.Step(s, SilenceTick{Epoch: s.Epoch, Level: SilenceCritical})
	if s.Silence != SilenceCritical {
		t.Errorf("Silence = %q, want critical", s.Silence)
	}

	s, eff = r.Step(s, StartRecording{})
	mustFind[CancelSilenceTimer](t, eff)
	if s.Silence != SilenceNone {
		t.Errorf("Silence = %q after leaving waiting, want none", s.Silence)
	}
}

func TestStep_ShortRecordingIsRejectedWithoutTranscription(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		duration time.Duration
		short    bool
	}{
		{"500 bytes", 500, 2 * time.Second, true},
		{"300ms", 5000, 300 * time.Millisecond, true},
		{"unknown duration", 5000, 0, false},
		{"long enough", 5000, 2 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRules(3)
			s := waiting(t, r)
			s, _ = r.Step(s, StartRecording{})
			s, eff := r.Step(s, StopRecording{Audio: make([]byte, tt.size), Duration: tt.duration})

			if tt.short {
				wantPhase(t, s, PhaseWaiting)
				mustNotFind[Transcribe](t, eff)
				if n := mustFind[Notify](t, eff); n.Text != NoticeRecordingTooShort {
					t.Errorf("Notify = %q", n.Text)
				}
				return
			}
			wantPhase(t, s, PhaseProcessing)
			mustFind[Transcribe](t, eff)
			mustFind[StartThinking](t, eff)
		})
	}
}

func TestStep_OfflineRecordingIsRefused(t *testing.T) {
	r := testRules(3)
	s := waiting(t, r)
	s, _ = r.Step(s, Network{Online: false})
	wantPhase(t, s, PhaseWaiting)

	next, eff := r.Step(s, StartRecording{})
	wantPhase(t, next, PhaseWaiting)
	if next.Epoch != s.Epoch {
		t.Error("refused recording must not re-enter waiting")
	}
	if n := mustFind[Notify](t, eff); n.Text != NoticeOffline {
		t.Errorf("Notify = %q", n.Text)
	}

	next, _ = r.Step(next, Network{Online: true})
	next, _ = r.Step(next, StartRecording{})
	wantPhase(t, next, PhaseCandidateSpeaking)
}

func TestStep_OfflineRetryIsRefused(t *testing.T) {
	r := testRules(3)

	tests := []struct {
		name  string
		setup func(t *testing.T) State
		want  Phase
	}{
		{
			name: "opening question failed",
			setup: func(t *testing.T) State {
				s, eff := r.Step(NewState(), Start{})
				gen := mustFind[GenerateReply](t, eff)
				s, _ = r.Step(s, Network{Online: false})
				s, _ = r.Step(s, ReplyFailed{Epoch: gen.Epoch, Message: "chat down"})
				return s
			},
			want: PhaseInitializing,
		},
		{
			name: "follow-up failed",
			setup: func(t *testing.T) State {
				s, eff := answer(t, r, waiting(t, r), "An answer.")
				gen := mustFind[GenerateReply](t, eff)
				s, _ = r.Step(s, Network{Online: false})
				s, _ = r.Step(s, ReplyFailed{Epoch: gen.Epoch, Message: "chat down"})
				return s
			},
			want: PhaseProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setup(t)
			wantPhase(t, s, PhaseError)

			next, eff := r.Step(s, Retry{})
			wantPhase(t, next, PhaseError)
			mustNotFind[GenerateReply](t, eff)
			if next.Epoch != s.Epoch || next.ErrorMessage != "chat down" {
				t.Errorf("refused retry changed state: %+v", next)
			}
			if n := mustFind[Notify](t, eff); n.Text != NoticeOffline {
				t.Errorf("Notify = %q", n.Text)
			}

			next, _ = r.Step(next, Network{Online: true})
			next, eff = r.Step(next, Retry{})
			wantPhase(t, next, tt.want)
			mustFind[GenerateReply](t, eff)
		})
	}
}

func TestStep_EmptyTranscriptReturnsToWaiting(t *testing.T) {
	r := testRules(3)
	s, eff := answer(t, r, waiting(t, r), "")
	wantPhase(t, s, PhaseWaiting)
	mustFind[StopThinking](t, eff)
	if n := mustFind[Notify](t, eff); n.Text != NoticeEmptyTranscript {
		t.Errorf("Notify = %q", n.Text)
	}
	if s.CandidateTurns != 0 {
		t.Errorf("CandidateTurns = %d, want 0", s.CandidateTurns)
	}
}

func TestStep_TranscribeFailureReturnsToWaiting(t *testing.T) {
	r := testRules(3)
	s := waiting(t, r)
	s, _ = r.Step(s, StartRecording{})
	s, eff := r.Step(s, StopRecording{Audio: make([]byte, 4000)})
	tr := mustFind[Transcribe](t, eff)

	s, eff = r.Step(s, TranscribeFailed{Epoch: tr.Epoch, Message: "try again"})
	wantPhase(t, s, PhaseWaiting)
	if n := mustFind[Notify](t, eff); n.Text != "try again" {
		t.Errorf("Notify = %q", n.Text)
	}
}

func TestStep_AnswerRequestsFollowUp(t *testing.T) {
	r := testRules(3)
	s, eff := answer(t, r, waiting(t, r), "I build distributed systems.")

	wantPhase(t, s, PhaseProcessing)
	if s.CandidateTurns != 1 || s.Progress != 33 {
		t.Errorf("turns/progress = %d/%d, want 1/33", s.CandidateTurns, s.Progress)
	}
	gen := mustFind[GenerateReply](t, eff)
	if len(gen.History) != 2 || gen.History[1].Role != types.RoleCandidate {
		t.Errorf("History = %+v", gen.History)
	}
	if gen.History[1].Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", gen.History[1].Duration)
	}
	mustFind[PersistSnapshot](t, eff)
}

func TestStep_BudgetReachedEndsInterview(t *testing.T) {
	r := testRules(1)
	s, eff := answer(t, r, waiting(t, r), "My final answer.")

	wantPhase(t, s, PhaseEnding)
	mustNotFind[GenerateReply](t, eff)
	if n := mustFind[Notify](t, eff); n.Text != NoticeBudgetReached {
		t.Errorf("Notify = %q", n.Text)
	}
	c := mustFind[Complete](t, eff)
	if c.Attempt != 1 || c.Delay != 0 || len(c.Messages) != 2 {
		t.Errorf("Complete = %+v", c)
	}
	if s.Progress != 100 {
		t.Errorf("Progress = %d, want 100", s.Progress)
	}
}

func TestStep_ClosingReplyEndsAfterPlayback(t *testing.T) {
	r := testRules(3)
	s, eff := answer(t, r, waiting(t, r), "Answer.")
	gen := mustFind[GenerateReply](t, eff)

	s, eff = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Thanks, that's all.", IsClosing: true, At: t0})
	wantPhase(t, s, PhaseInterviewerSpeaking)
	speak := mustFind[Speak](t, eff)

	s, eff = r.Step(s, PlaybackDone{Epoch: speak.Epoch})
	wantPhase(t, s, PhaseEnding)
	mustFind[Complete](t, eff)
}

func TestStep_CompletionRetriesWithBackoff(t *testing.T) {
	r := testRules(1)
	s, eff := answer(t, r, waiting(t, r), "Done.")
	c := mustFind[Complete](t, eff)

	s, eff = r.Step(s, CompleteFailed{Epoch: c.Epoch, Attempt: 1})
	wantPhase(t, s, PhaseEnding)
	c = mustFind[Complete](t, eff)
	if c.Attempt != 2 || c.Delay != time.Second {
		t.Errorf("second Complete = attempt %d delay %v, want 2/1s", c.Attempt, c.Delay)
	}

	// A duplicate failure report for an earlier attempt is ignored.
	if _, eff := r.Step(s, CompleteFailed{Epoch: c.Epoch, Attempt: 1}); len(eff) != 0 {
		t.Errorf("duplicate failure emitted %v", eff)
	}

	s, eff = r.Step(s, CompleteFailed{Epoch: c.Epoch, Attempt: 2})
	c = mustFind[Complete](t, eff)
	if c.Attempt != 3 || c.Delay != 2*time.Second {
		t.Errorf("third Complete = attempt %d delay %v, want 3/2s", c.Attempt, c.Delay)
	}

	s, eff = r.Step(s, Completed{Epoch: c.Epoch})
	wantPhase(t, s, PhaseEnded)
	mustFind[ClearSnapshot](t, eff)
}

func TestStep_CompletionExhaustionPreservesTranscript(t *testing.T) {
	r := testRules(1)
	s, eff := answer(t, r, waiting(t, r), "Done.")
	c := mustFind[Complete](t, eff)

	for attempt := 1; attempt <= 3; attempt++ {
		s, eff = r.Step(s, CompleteFailed{Epoch: c.Epoch, Attempt: attempt})
	}
	wantPhase(t, s, PhaseError)
	mustNotFind[ClearSnapshot](t, eff)
	if !s.TranscriptPreserved || s.ErrorMessage != MessageCompletionFailed {
		t.Errorf("error state = %+v", s)
	}
	if len(s.Messages) != 2 {
		t.Errorf("Messages = %d, want 2", len(s.Messages))
	}

	s, eff = r.Step(s, Retry{})
	wantPhase(t, s, PhaseEnding)
	if c := mustFind[Complete](t, eff); c.Attempt != 1 {
		t.Errorf("Complete.Attempt = %d, want 1", c.Attempt)
	}
	if s.ErrorMessage != "" || s.TranscriptPreserved {
		t.Error("error fields not cleared on retry")
	}
}

func TestStep_RetryResumesWhereItFailed(t *testing.T) {
	r := testRules(3)

	t.Run("opening question failed", func(t *testing.T) {
		s, eff := r.Step(NewState(), Start{})
		gen := mustFind[GenerateReply](t, eff)
		s, _ = r.Step(s, ReplyFailed{Epoch: gen.Epoch, Message: "chat down"})
		wantPhase(t, s, PhaseError)
		if s.ErrorMessage != "chat down" || s.TranscriptPreserved {
			t.Errorf("error state = %+v", s)
		}

		s, eff = r.Step(s, Retry{})
		wantPhase(t, s, PhaseInitializing)
		mustFind[GenerateReply](t, eff)
	})

	t.Run("follow-up failed", func(t *testing.T) {
		s, eff := answer(t, r, waiting(t, r), "An answer.")
		gen := mustFind[GenerateReply](t, eff)
		s, eff = r.Step(s, ReplyFailed{Epoch: gen.Epoch, Message: "chat down"})
		wantPhase(t, s, PhaseError)
		mustFind[StopThinking](t, eff)

		s, eff = r.Step(s, Retry{})
		wantPhase(t, s, PhaseProcessing)
		gen = mustFind[GenerateReply](t, eff)
		if gen.Epoch != s.Epoch || len(gen.History) != 2 {
			t.Errorf("GenerateReply = %+v", gen)
		}
	})

	t.Run("retry outside error is ignored", func(t *testing.T) {
		s := waiting(t, r)
		next, eff := r.Step(s, Retry{})
		if next.Epoch != s.Epoch || len(eff) != 0 {
			t.Error("Retry in waiting had an effect")
		}
	})
}

func TestStep_Leave(t *testing.T) {
	r := testRules(3)

	t.Run("while speaking", func(t *testing.T) {
		s, eff := r.Step(NewState(), Start{})
		gen := mustFind[GenerateReply](t, eff)
		s, _ = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Q?", At: t0})

		s, eff = r.Step(s, Leave{})
		wantPhase(t, s, PhaseEnded)
		if _, ok := eff[0].(CancelSpeech); !ok {
			t.Errorf("first effect = %T, want CancelSpeech", eff[0])
		}
		ab, ok := eff[len(eff)-1].(Abandon)
		if !ok {
			t.Fatalf("last effect = %T, want Abandon", eff[len(eff)-1])
		}
		if len(ab.Messages) != 1 {
			t.Errorf("Abandon.Messages = %d, want 1", len(ab.Messages))
		}
	})

	t.Run("while waiting", func(t *testing.T) {
		s, eff := r.Step(waiting(t, r), Leave{})
		wantPhase(t, s, PhaseEnded)
		mustFind[CancelSilenceTimer](t, eff)
		mustFind[Abandon](t, eff)
	})

	t.Run("while ending", func(t *testing.T) {
		r := testRules(1)
		s, _ := answer(t, r, waiting(t, r), "Done.")
		next, eff := r.Step(s, Leave{})
		wantPhase(t, next, PhaseEnding)
		if len(eff) != 0 {
			t.Errorf("effects = %v, want none", eff)
		}
	})

	t.Run("after failed submission", func(t *testing.T) {
		r := testRules(1)
		s, eff := answer(t, r, waiting(t, r), "Done.")
		c := mustFind[Complete](t, eff)
		for attempt := 1; attempt <= 3; attempt++ {
			s, _ = r.Step(s, CompleteFailed{Epoch: c.Epoch, Attempt: attempt})
		}
		wantPhase(t, s, PhaseError)

		next, eff := r.Step(s, Leave{})
		wantPhase(t, next, PhaseEnded)
		mustNotFind[Abandon](t, eff)
		mustNotFind[ClearSnapshot](t, eff)

		// The kept snapshot resumes straight into submission.
		resumed, eff := r.Step(NewState(), Start{Recovered: s.Messages})
		wantPhase(t, resumed, PhaseEnding)
		mustFind[Complete](t, eff)
	})

	t.Run("after failed reply", func(t *testing.T) {
		s, eff := answer(t, r, waiting(t, r), "An answer.")
		gen := mustFind[GenerateReply](t, eff)
		s, _ = r.Step(s, ReplyFailed{Epoch: gen.Epoch, Message: "chat down"})

		s, eff = r.Step(s, Leave{})
		wantPhase(t, s, PhaseEnded)
		mustFind[Abandon](t, eff)
	})
}

func TestStep_EndedIsAbsorbing(t *testing.T) {
	r := testRules(3)
	s, _ := r.Step(waiting(t, r), Leave{})
	wantPhase(t, s, PhaseEnded)

	events := []Event{
		Start{}, StartRecording{}, StopRecording{Audio: make([]byte, 5000)}, Retry{},
		Network{Online: false}, Mute{Muted: true}, Leave{},
		ReplyReady{Epoch: s.Epoch, Text: "x"}, ReplyFailed{Epoch: s.Epoch},
		PlaybackDone{Epoch: s.Epoch}, AutoStop{Epoch: s.Epoch},
		SilenceTick{Epoch: s.Epoch, Level: SilenceCritical},
		Transcribed{Epoch: s.Epoch, Text: "x"}, TranscribeFailed{Epoch: s.Epoch},
		Completed{Epoch: s.Epoch}, CompleteFailed{Epoch: s.Epoch, Attempt: 1},
	}
	for _, ev := range events {
		next, eff := r.Step(s, ev)
		if !reflect.DeepEqual(next, s) || len(eff) != 0 {
			t.Errorf("%T changed an ended interview", ev)
		}
	}
}

func TestStep_MuteSkipsSpeech(t *testing.T) {
	r := testRules(3)

	t.Run("mute while speaking", func(t *testing.T) {
		s, eff := r.Step(NewState(), Start{})
		gen := mustFind[GenerateReply](t, eff)
		s, _ = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Q?", At: t0})

		s, eff = r.Step(s, Mute{Muted: true})
		wantPhase(t, s, PhaseWaiting)
		if _, ok := eff[0].(CancelSpeech); !ok {
			t.Errorf("first effect = %T, want CancelSpeech", eff[0])
		}
	})

	t.Run("reply while muted", func(t *testing.T) {
		s, eff := r.Step(NewState(), Start{})
		gen := mustFind[GenerateReply](t, eff)
		s, _ = r.Step(s, Mute{Muted: true})
		s, eff = r.Step(s, ReplyReady{Epoch: gen.Epoch, Text: "Q?", At: t0})
		wantPhase(t, s, PhaseWaiting)
		mustNotFind[Speak](t, eff)
		mustFind[PersistSnapshot](t, eff)
		if len(s.Messages) != 1 {
			t.Errorf("Messages = %d, want 1", len(s.Messages))
		}
	})
}

func TestStep_IntenseAutoStop(t *testing.T) {
	r := testRules(3)
	r.Profile = DefaultProfiles[types.DifficultyIntense]
	s := waiting(t, r)

	s, eff := r.Step(s, StartRecording{})
	as := mustFind[StartAutoStop](t, eff)
	if as.After != 45*time.Second || as.Epoch != s.Epoch {
		t.Errorf("StartAutoStop = %+v", as)
	}

	if _, eff := r.Step(s, AutoStop{Epoch: s.Epoch - 1}); len(eff) != 0 {
		t.Error("stale AutoStop fired")
	}
	_, eff = r.Step(s, AutoStop{Epoch: s.Epoch})
	mustFind[ForceStopRecording](t, eff)

	_, eff = r.Step(s, StopRecording{Audio: make([]byte, 5000)})
	mustFind[CancelAutoStop](t, eff)
}

func TestStep_RecoveredTranscript(t *testing.T) {
	recovered := []types.ConversationMessage{
		{Role: types.RoleInterviewer, Content: "Q1?", Timestamp: t0},
		{Role: types.RoleCandidate, Content: "A1.", Timestamp: t0.Add(time.Minute)},
		{Role: types.RoleInterviewer, Content: "Q2?", Timestamp: t0.Add(2 * time.Minute)},
	}

	t.Run("resumes waiting", func(t *testing.T) {
		r := testRules(3)
		s, eff := r.Step(NewState(), Start{Recovered: recovered})
		wantPhase(t, s, PhaseWaiting)
		mustNotFind[GenerateReply](t, eff)
		mustFind[StartSilenceTimer](t, eff)
		if s.CandidateTurns != 1 || s.Progress != 33 || len(s.Messages) != 3 {
			t.Errorf("state = turns %d progress %d messages %d", s.CandidateTurns, s.Progress, len(s.Messages))
		}
	})

	t.Run("budget already spent", func(t *testing.T) {
		r := testRules(1)
		s, eff := r.Step(NewState(), Start{Recovered: recovered})
		wantPhase(t, s, PhaseEnding)
		mustFind[Complete](t, eff)
	})
}

func TestRules_Progress(t *testing.T) {
	tests := []struct {
		budget, expected, turns, want int
	}{
		{5, 0, 0, 0},
		{5, 0, 2, 40},
		{5, 4, 2, 50},
		{5, 4, 6, 100},
		{0, 0, 3, 0},
	}
	for _, tt := range tests {
		r := Rules{QuestionBudget: tt.budget, ExpectedQuestions: tt.expected}
		if got := r.progress(tt.turns); got != tt.want {
			t.Errorf("progress(budget %d, expected %d, turns %d) = %d, want %d",
				tt.budget, tt.expected, tt.turns, got, tt.want)
		}
	}
}
