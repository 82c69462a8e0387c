package interview

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrWong99/rehearse/internal/capability"
	"github.com/MrWong99/rehearse/internal/observe"
	"github.com/MrWong99/rehearse/internal/snapshot"
	"github.com/MrWong99/rehearse/internal/store"
	"github.com/MrWong99/rehearse/internal/vocab"
	"github.com/MrWong99/rehearse/pkg/provider/tts"
	"github.com/MrWong99/rehearse/pkg/types"
)

// Default runner parameters.
const (
	defaultQueueSize        = 32
	defaultThinkingInterval = 3 * time.Second
	defaultStoreTimeout     = 10 * time.Second
	defaultMinRecording     = 500 * time.Millisecond
)

// DefaultThinkingMessages rotate while the candidate's answer is processed.
var DefaultThinkingMessages = []string{
	"Listening back to your answer…",
	"Thinking about a follow-up…",
	"Considering what you said…",
	"Reviewing your answer…",
}

// Replier produces interviewer turns. Satisfied by *capability.ReplyGenerator.
type Replier interface {
	GenerateReply(ctx context.Context, req capability.ReplyRequest) (*capability.Reply, error)
}

// Transcriber converts recordings to text. Satisfied by
// *capability.Transcriber.
type Transcriber interface {
	Transcribe(ctx context.Context, clip capability.Clip) (*capability.Transcription, error)
}

// Corrector fixes misheard vocabulary in transcripts. Satisfied by
// *vocab.Corrector.
type Corrector interface {
	Correct(text string, terms []string) vocab.Result
}

// Synthesizer renders text as audio. Satisfied by *capability.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*capability.Speech, error)
}

// Playback is one audio blob for the client to play.
type Playback struct {
	Audio    []byte
	Format   tts.Format
	Model    string
	Degraded bool
}

// Player is the audio boundary. Both methods block until the client reports
// that playback ended or failed, or ctx is done.
type Player interface {
	Play(ctx context.Context, p Playback) error

	// SpeakLocal asks the client to speak text with its on-device voice.
	SpeakLocal(ctx context.Context, text string) error
}

// Observer receives everything the candidate should see. Methods may be
// called from several goroutines.
type Observer interface {
	OnState(s State)
	OnNotice(text string)
	OnThinking(text string)
	OnForceStop()
}

// Persister is the part of [store.Store] the machine writes to.
type Persister interface {
	AppendMessages(ctx context.Context, id string, msgs []types.ConversationMessage) error
	MarkComplete(ctx context.Context, id string, msgs []types.ConversationMessage, m store.Metrics) error
	MarkAbandoned(ctx context.Context, id string) error
}

// Config configures a [Machine].
type Config struct {
	SessionID     string
	InterviewType string
	Difficulty    types.Difficulty
	Role          types.RoleContext

	// Rules drives transitions. A zero Profile is filled from Difficulty and
	// zero recording minimums get the built-in values.
	Rules Rules

	Replier     Replier
	Transcriber Transcriber
	Synthesizer Synthesizer
	Player      Player
	Observer    Observer
	Persister   Persister

	// Corrector is optional. It aligns transcripts with the role's company,
	// title and focus areas plus Vocabulary.
	Corrector  Corrector
	Vocabulary []string

	// Snapshots is optional; without it interviews cannot be resumed.
	Snapshots   snapshot.Store
	SnapshotTTL time.Duration

	ThinkingMessages []string
	ThinkingInterval time.Duration

	// StoreTimeout bounds each snapshot and persistence call. Default: 10s.
	StoreTimeout time.Duration

	Metrics *observe.Metrics
	Logger  *slog.Logger
	Rand    *rand.Rand
	Now     func() time.Time
}

// Machine runs one interview. Create it with [NewMachine], start it with
// [Machine.Run] and feed client events with [Machine.Send].
type Machine struct {
	cfg    Config
	rules  Rules
	terms  []string
	log    *slog.Logger
	events chan Event
	done   chan struct{}

	mu    sync.RWMutex
	state State

	// Owned by the Run goroutine.
	ctx            context.Context
	silenceTimers  []*time.Timer
	autoStop       *time.Timer
	speechCancel   context.CancelFunc
	thinkingCancel context.CancelFunc
	wg             sync.WaitGroup

	rngMu sync.Mutex
}

// NewMachine returns a Machine for cfg.
func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.ThinkingInterval <= 0 {
		cfg.ThinkingInterval = defaultThinkingInterval
	}
	if cfg.ThinkingMessages == nil {
		cfg.ThinkingMessages = DefaultThinkingMessages
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = snapshot.DefaultTTL
	}

	rules := cfg.Rules
	if rules.Profile == (Profile{}) {
		rules.Profile = ProfileFor(nil, cfg.Difficulty)
	}
	if rules.MinRecordingBytes <= 0 {
		rules.MinRecordingBytes = capability.MinAudioBytes
	}
	if rules.MinRecordingDuration <= 0 {
		rules.MinRecordingDuration = defaultMinRecording
	}

	return &Machine{
		cfg:    cfg,
		rules:  rules,
		terms:  vocab.Terms(cfg.Role, cfg.Vocabulary...),
		log:    cfg.Logger.With("session_id", cfg.SessionID),
		events: make(chan Event, defaultQueueSize),
		done:   make(chan struct{}),
		state:  NewState(),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Done is closed when Run has returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Send queues ev. It reports false if the machine has stopped.
func (m *Machine) Send(ev Event) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// Run restores any valid snapshot, starts the interview and processes events
// until the interview ends or ctx is cancelled. Cancelling ctx without a
// [Leave] keeps the snapshot so the interview can be resumed.
func (m *Machine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.ctx = ctx
	defer func() {
		m.stopTimers()
		cancel()
		m.wg.Wait()
		close(m.done)
	}()

	m.cfg.Metrics.ActiveInterviews.Add(ctx, 1)
	defer m.cfg.Metrics.ActiveInterviews.Add(context.WithoutCancel(ctx), -1)

	m.cfg.Observer.OnState(m.State())
	m.apply(Start{Recovered: m.restore(ctx)})

	for {
		if m.State().Phase == PhaseEnded {
			return nil
		}
		select {
		case <-ctx.Done():
			m.log.Info("interview machine stopped", "phase", m.State().Phase, "err", ctx.Err())
			return ctx.Err()
		case ev := <-m.events:
			m.apply(ev)
		}
	}
}

// post delivers an internal event unless the machine is stopping.
func (m *Machine) post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Machine) apply(ev Event) {
	prev := m.State()
	next, effects := m.rules.Step(prev, ev)

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	if next.Phase != prev.Phase {
		m.log.Debug("interview transition", "from", prev.Phase, "to", next.Phase)
		m.cfg.Metrics.RecordTransition(m.ctx, string(prev.Phase), string(next.Phase))
	}
	if visibleChange(prev, next) {
		m.cfg.Observer.OnState(next)
	}
	for _, eff := range effects {
		m.execute(eff)
	}
}

// visibleChange reports whether an observer would render b differently from a.
func visibleChange(a, b State) bool {
	return a.Phase != b.Phase ||
		a.Epoch != b.Epoch ||
		len(a.Messages) != len(b.Messages) ||
		a.Online != b.Online ||
		a.Muted != b.Muted ||
		a.Silence != b.Silence ||
		a.Degraded != b.Degraded ||
		a.ErrorMessage != b.ErrorMessage
}

func (m *Machine) execute(eff Effect) {
	switch eff := eff.(type) {
	case GenerateReply:
		m.wg.Go(func() { m.generateReply(eff) })
	case Transcribe:
		m.wg.Go(func() { m.transcribe(eff) })
	case Speak:
		m.cancelSpeech()
		ctx, cancel := context.WithCancel(m.ctx)
		m.speechCancel = cancel
		m.wg.Go(func() { m.speak(ctx, eff) })
	case CancelSpeech:
		m.cancelSpeech()
	case StartSilenceTimer:
		m.stopSilence()
		m.silenceTimers = append(m.silenceTimers,
			m.after(eff.Warning, SilenceTick{Epoch: eff.Epoch, Level: SilenceWarning}),
			m.after(eff.Critical, SilenceTick{Epoch: eff.Epoch, Level: SilenceCritical}),
		)
	case CancelSilenceTimer:
		m.stopSilence()
	case StartAutoStop:
		m.stopAutoStop()
		m.autoStop = m.after(eff.After, AutoStop{Epoch: eff.Epoch})
	case CancelAutoStop:
		m.stopAutoStop()
	case ForceStopRecording:
		m.cfg.Observer.OnForceStop()
	case StartThinking:
		m.startThinking()
	case StopThinking:
		m.stopThinking()
	case PersistSnapshot:
		m.persistSnapshot(eff.Messages)
	case ClearSnapshot:
		m.clearSnapshot()
	case Complete:
		m.wg.Go(func() { m.complete(eff) })
	case Abandon:
		m.abandon(eff.Messages)
	case Notify:
		m.cfg.Observer.OnNotice(eff.Text)
	default:
		m.log.Warn("unknown effect", "effect", eff)
	}
}

// ─── Capability calls ─────────────────────────────────────────────────────────

func (m *Machine) generateReply(eff GenerateReply) {
	reply, err := m.cfg.Replier.GenerateReply(m.ctx, capability.ReplyRequest{
		History:        eff.History,
		Difficulty:     m.cfg.Difficulty,
		Role:           m.cfg.Role,
		InterviewType:  m.cfg.InterviewType,
		QuestionBudget: m.rules.QuestionBudget,
		OnRetry:        m.onRetry,
	})
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.log.Warn("reply generation failed", "err", err)
		m.post(ReplyFailed{Epoch: eff.Epoch, Message: capability.FriendlyMessage(err)})
		return
	}
	m.post(ReplyReady{
		Epoch:       eff.Epoch,
		Text:        reply.Text,
		IsClosing:   reply.IsClosing,
		WasDegraded: reply.WasDegraded,
		At:          m.cfg.Now(),
	})
}

func (m *Machine) transcribe(eff Transcribe) {
	tr, err := m.cfg.Transcriber.Transcribe(m.ctx, capability.Clip{
		Audio:    eff.Audio,
		MIMEType: eff.MIMEType,
		Duration: eff.Duration,
		OnRetry:  m.onRetry,
	})
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.log.Warn("transcription failed", "err", err)
		m.post(TranscribeFailed{Epoch: eff.Epoch, Message: capability.FriendlyMessage(err)})
		return
	}
	text := tr.Text
	if m.cfg.Corrector != nil && len(m.terms) > 0 {
		res := m.cfg.Corrector.Correct(text, m.terms)
		if len(res.Corrections) > 0 {
			m.log.Debug("transcript corrected", "corrections", res.Corrections)
			text = res.Text
		}
	}
	m.post(Transcribed{
		Epoch:       eff.Epoch,
		Text:        text,
		Duration:    time.Duration(tr.DurationSeconds * float64(time.Second)),
		WasDegraded: tr.WasDegraded,
		At:          m.cfg.Now(),
	})
}

func (m *Machine) onRetry(msg string, attempt int) {
	m.log.Debug("trying next model", "attempt", attempt)
	m.cfg.Observer.OnThinking(msg)
}

// ─── Speech ───────────────────────────────────────────────────────────────────

type synthesized struct {
	speech *capability.Speech
	err    error
}

// speak plays text split at its first sentence boundary, synthesizing the
// remainder while the first sentence plays. Whatever cannot be synthesized or
// played is spoken with the on-device voice. When the first sentence fails the
// device voice speaks the whole text, so a partly played first sentence is
// heard again.
func (m *Machine) speak(ctx context.Context, eff Speak) {
	first, rest := splitFirstSentence(eff.Text)

	var pending chan synthesized
	if rest != "" {
		pending = make(chan synthesized, 1)
		m.wg.Go(func() {
			sp, err := m.cfg.Synthesizer.Synthesize(ctx, rest)
			pending <- synthesized{sp, err}
		})
	}

	if err := m.playText(ctx, first); err != nil {
		m.speakLocal(ctx, eff.Text, err)
	} else if pending != nil {
		var next synthesized
		select {
		case next = <-pending:
		case <-ctx.Done():
			return
		}
		err := next.err
		if err == nil {
			err = m.play(ctx, next.speech)
		}
		if err != nil {
			m.speakLocal(ctx, rest, err)
		}
	}

	if ctx.Err() == nil {
		m.post(PlaybackDone{Epoch: eff.Epoch})
	}
}

func (m *Machine) playText(ctx context.Context, text string) error {
	sp, err := m.cfg.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return m.play(ctx, sp)
}

func (m *Machine) play(ctx context.Context, sp *capability.Speech) error {
	return m.cfg.Player.Play(ctx, Playback{
		Audio:    sp.Audio,
		Format:   sp.Format,
		Model:    sp.Model,
		Degraded: sp.WasDegraded,
	})
}

func (m *Machine) speakLocal(ctx context.Context, text string, cause error) {
	if ctx.Err() != nil {
		return
	}
	m.log.Warn("falling back to device voice",
		"tts_exhausted", capability.UseDeviceVoice(cause),
		"err", cause)
	if err := m.cfg.Player.SpeakLocal(ctx, text); err != nil && ctx.Err() == nil {
		m.log.Warn("device voice failed", "err", err)
	}
}

func (m *Machine) cancelSpeech() {
	if m.speechCancel != nil {
		m.speechCancel()
		m.speechCancel = nil
	}
}

// splitFirstSentence splits text after its first sentence. rest is empty when
// text is a single sentence.
func splitFirstSentence(text string) (first, rest string) {
	i := firstSentenceBoundary(text)
	if i < 0 {
		return text, ""
	}
	return text[:i+1], trimLeftSpace(text[i+1:])
}

// firstSentenceBoundary returns the index of the first '.', '!' or '?' that
// is followed by whitespace, or -1.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

func trimLeftSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\n' || s[0] == '\r' || s[0] == '\t') {
		s = s[1:]
	}
	return s
}

// ─── Timers ───────────────────────────────────────────────────────────────────

// after posts ev once d has elapsed. A non-positive d never fires.
func (m *Machine) after(d time.Duration, ev Event) *time.Timer {
	if d <= 0 {
		return nil
	}
	return time.AfterFunc(d, func() { m.post(ev) })
}

func (m *Machine) stopSilence() {
	for _, t := range m.silenceTimers {
		if t != nil {
			t.Stop()
		}
	}
	m.silenceTimers = m.silenceTimers[:0]
}

func (m *Machine) stopAutoStop() {
	if m.autoStop != nil {
		m.autoStop.Stop()
		m.autoStop = nil
	}
}

func (m *Machine) stopTimers() {
	m.stopSilence()
	m.stopAutoStop()
	m.stopThinking()
	m.cancelSpeech()
}

// ─── Thinking messages ────────────────────────────────────────────────────────

func (m *Machine) startThinking() {
	m.stopThinking()
	msgs := m.cfg.ThinkingMessages
	if len(msgs) == 0 {
		return
	}
	m.rngMu.Lock()
	order := m.cfg.Rand.Perm(len(msgs))
	m.rngMu.Unlock()

	ctx, cancel := context.WithCancel(m.ctx)
	m.thinkingCancel = cancel
	interval := m.cfg.ThinkingInterval

	m.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			if ctx.Err() != nil {
				return
			}
			m.cfg.Observer.OnThinking(msgs[order[i%len(order)]])
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}

func (m *Machine) stopThinking() {
	if m.thinkingCancel != nil {
		m.thinkingCancel()
		m.thinkingCancel = nil
	}
}

// ─── Persistence ──────────────────────────────────────────────────────────────

// restore returns the transcript of a valid snapshot, or nil.
func (m *Machine) restore(ctx context.Context) []types.ConversationMessage {
	if m.cfg.Snapshots == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	snap, err := m.cfg.Snapshots.Load(ctx, m.cfg.SessionID)
	if err != nil {
		m.log.Warn("load snapshot failed, starting fresh", "err", err)
		return nil
	}
	if snap == nil {
		return nil
	}
	if !snapshot.Valid(snap, m.cfg.SessionID, m.cfg.Now(), m.cfg.SnapshotTTL) {
		m.log.Info("discarding stale snapshot", "last_updated", snap.LastUpdated)
		if err := m.cfg.Snapshots.Delete(ctx, m.cfg.SessionID); err != nil {
			m.log.Warn("delete stale snapshot failed", "err", err)
		}
		return nil
	}
	m.log.Info("resuming interview from snapshot", "messages", len(snap.Messages))
	return snap.Messages
}

func (m *Machine) persistSnapshot(msgs []types.ConversationMessage) {
	if m.cfg.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
	defer cancel()
	err := m.cfg.Snapshots.Save(ctx, snapshot.Snapshot{
		SessionID:   m.cfg.SessionID,
		Messages:    msgs,
		LastUpdated: m.cfg.Now(),
	})
	if err != nil {
		m.log.Warn("save snapshot failed", "err", err)
	}
}

func (m *Machine) clearSnapshot() {
	if m.cfg.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), m.cfg.StoreTimeout)
	defer cancel()
	if err := m.cfg.Snapshots.Delete(ctx, m.cfg.SessionID); err != nil {
		m.log.Warn("clear snapshot failed", "err", err)
	}
}

func (m *Machine) complete(eff Complete) {
	if eff.Delay > 0 {
		t := time.NewTimer(eff.Delay)
		select {
		case <-m.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
	defer cancel()
	err := m.cfg.Persister.MarkComplete(ctx, m.cfg.SessionID, eff.Messages, store.DeriveMetrics(eff.Messages))
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.log.Warn("complete interview failed",
			"attempt", eff.Attempt,
			"max_attempts", m.rules.Completion.MaxAttempts(),
			"err", err)
		m.post(CompleteFailed{Epoch: eff.Epoch, Attempt: eff.Attempt})
		return
	}
	m.log.Info("interview completed", "messages", len(eff.Messages))
	m.post(Completed{Epoch: eff.Epoch})
}

// abandon runs on a context detached from the connection, which is usually
// closing when the candidate leaves.
func (m *Machine) abandon(msgs []types.ConversationMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), m.cfg.StoreTimeout)
	defer cancel()

	if len(msgs) > 0 {
		if err := m.cfg.Persister.AppendMessages(ctx, m.cfg.SessionID, msgs); err != nil {
			m.log.Warn("store transcript of abandoned interview failed", "err", err)
			return
		}
	}
	if err := m.cfg.Persister.MarkAbandoned(ctx, m.cfg.SessionID); err != nil {
		m.log.Warn("mark interview abandoned failed", "err", err)
		return
	}
	m.log.Info("interview abandoned", "messages", len(msgs))
	m.clearSnapshot()
}
