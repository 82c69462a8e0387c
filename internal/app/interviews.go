package app

import (
	"github.com/MrWong99/rehearse/internal/config"
	"github.com/MrWong99/rehearse/internal/interview"
	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/internal/store"
	"github.com/MrWong99/rehearse/internal/vocab"
	"github.com/MrWong99/rehearse/pkg/types"
)

// newMachine builds the state machine for one connected interview from the
// current interview rules. It is the transport's [transport.NewMachineFunc].
func (a *App) newMachine(sess *store.Session, player interview.Player, obs interview.Observer) *interview.Machine {
	ic := a.interview.Load()

	return interview.NewMachine(interview.Config{
		SessionID:     sess.ID,
		InterviewType: sess.InterviewType,
		Difficulty:    sess.Difficulty,
		Role:          sess.Role,
		Rules:         rulesFor(ic, sess),

		Replier:     a.replier,
		Transcriber: a.transcriber,
		Synthesizer: a.synth,
		Player:      player,
		Observer:    obs,
		Persister:   a.sessions,

		Corrector:  corrector(ic.Vocabulary),
		Vocabulary: ic.Vocabulary.Terms,

		Snapshots:   a.snapshots,
		SnapshotTTL: ic.SnapshotTTL,

		ThinkingMessages: ic.ThinkingMessages,
		ThinkingInterval: ic.ThinkingInterval,

		Metrics: a.metrics,
		Logger:  a.log,
		Rand:    a.newRand(),
	})
}

// corrector returns the vocabulary corrector configured by vc, or nil when
// correction is disabled.
func corrector(vc config.VocabularyConfig) interview.Corrector {
	if !vc.Enabled {
		return nil
	}
	return vocab.NewCorrector(vocab.NewMatcher(
		vocab.WithPhoneticThreshold(vc.PhoneticThreshold),
		vocab.WithFuzzyThreshold(vc.FuzzyThreshold),
	))
}

// rulesFor derives the transition rules of sess from ic. Zero values are
// left for [interview.NewMachine] to default.
func rulesFor(ic *config.InterviewConfig, sess *store.Session) interview.Rules {
	expected := sess.QuestionBudget
	if expected == 0 {
		expected = ic.Types[sess.InterviewType].ExpectedQuestions
	}
	return interview.Rules{
		QuestionBudget:       sess.QuestionBudget,
		ExpectedQuestions:    expected,
		Profile:              interview.ProfileFor(profiles(ic.Profiles), sess.Difficulty),
		MinRecordingBytes:    ic.MinRecordingBytes,
		MinRecordingDuration: ic.MinRecordingDuration,
		Completion: resilience.Backoff{
			Attempts: ic.Completion.Attempts,
			Initial:  ic.Completion.Initial,
			Max:      ic.Completion.Max,
		},
	}
}

// profiles converts configured profiles, completing partial ones from the
// built-in profile of the same difficulty.
func profiles(cfg map[types.Difficulty]config.ProfileConfig) map[types.Difficulty]interview.Profile {
	if len(cfg) == 0 {
		return nil
	}
	out := make(map[types.Difficulty]interview.Profile, len(cfg))
	for d, pc := range cfg {
		p := interview.ProfileFor(nil, d)
		if pc.SilenceWarning > 0 {
			p.SilenceWarning = pc.SilenceWarning
		}
		if pc.SilenceCritical > 0 {
			p.SilenceCritical = pc.SilenceCritical
		}
		if pc.AutoStop > 0 {
			p.AutoStop = pc.AutoStop
		}
		out[d] = p
	}
	return out
}
