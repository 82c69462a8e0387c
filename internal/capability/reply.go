package capability

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/MrWong99/rehearse/internal/resilience"
	"github.com/MrWong99/rehearse/pkg/provider/llm"
	"github.com/MrWong99/rehearse/pkg/types"
)

// errEmptyReply makes the executor move on when a model returns nothing.
var errEmptyReply = errors.New("model returned an empty reply")

// kickoffMessage stands in for the candidate on the opening turn, since some
// providers reject requests without a user message.
const kickoffMessage = "(The candidate has joined and is ready to begin.)"

// ReplyRequest is the input of [ReplyGenerator.GenerateReply].
type ReplyRequest struct {
	History        []types.ConversationMessage
	Difficulty     types.Difficulty
	Role           types.RoleContext
	InterviewType  string
	// QuestionBudget is the number of candidate answers after which the
	// interview ends. The session ends on its own once it is reached, so the
	// generator only announces the final question; closing early is left to
	// the model through [ClosingMarker].
	QuestionBudget int

	// OnRetry, if set, is told when a lower-ranked model is being tried.
	OnRetry func(msg string, attempt int)
}

// Reply is the next interviewer utterance.
type Reply struct {
	Text        string
	Model       string
	WasDegraded bool

	// IsClosing means this utterance ends the interview.
	IsClosing bool
}

// ReplyGenerator produces interviewer turns.
type ReplyGenerator struct {
	exec        *resilience.Executor
	provider    llm.Provider
	temperature float64
	maxTokens   int

	mu  sync.Mutex
	rng *rand.Rand
}

// ReplyOption configures a [ReplyGenerator].
type ReplyOption func(*ReplyGenerator)

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(t float64) ReplyOption {
	return func(g *ReplyGenerator) { g.temperature = t }
}

// WithMaxTokens caps the reply length. Default: 400.
func WithMaxTokens(n int) ReplyOption {
	return func(g *ReplyGenerator) { g.maxTokens = n }
}

// NewReplyGenerator returns a ReplyGenerator calling p through exec. rng picks
// seed questions; pass a seeded source in tests.
func NewReplyGenerator(exec *resilience.Executor, p llm.Provider, rng *rand.Rand, opts ...ReplyOption) *ReplyGenerator {
	g := &ReplyGenerator{
		exec:        exec,
		provider:    p,
		rng:         rng,
		temperature: 0.7,
		maxTokens:   400,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GenerateReply produces the next interviewer utterance for req.History.
//
// The reply is marked closing when the model emits [ClosingMarker].
func (g *ReplyGenerator) GenerateReply(ctx context.Context, req ReplyRequest) (*Reply, error) {
	turns := types.CountRole(req.History, types.RoleCandidate)
	in := promptInput{
		InterviewType:  req.InterviewType,
		Role:           req.Role,
		Difficulty:     req.Difficulty,
		QuestionBudget: req.QuestionBudget,
		CandidateTurns: turns,
		FinalQuestion:  req.QuestionBudget > 0 && turns == req.QuestionBudget-1,
		SeedQuestion:   g.pickSeed(req.Role.SeedQuestions, req.History),
	}
	system := buildSystemPrompt(in)
	msgs := toLLMMessages(req.History)

	res, err := resilience.Execute(ctx, g.exec, types.CategoryChat,
		func(ctx context.Context, model string) (*Reply, error) {
			resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
				Model:        model,
				SystemPrompt: system,
				Messages:     msgs,
				Temperature:  g.temperature,
				MaxTokens:    g.maxTokens,
			})
			if err != nil {
				return nil, err
			}
			if resp == nil {
				return nil, errEmptyReply
			}
			text, marked := stripClosingMarker(resp.Content)
			if text == "" {
				return nil, errEmptyReply
			}
			return &Reply{Text: text, IsClosing: marked}, nil
		}, req.OnRetry)
	if err != nil {
		return nil, fmt.Errorf("capability: generate reply: %w", err)
	}

	reply := res.Data
	reply.Model = res.Model
	reply.WasDegraded = res.WasDegraded
	return reply, nil
}

// pickSeed returns a random seed question not yet asked verbatim, or "".
func (g *ReplyGenerator) pickSeed(seeds []string, history []types.ConversationMessage) string {
	asked := make(map[string]bool, len(history))
	for _, m := range history {
		if m.Role == types.RoleInterviewer {
			asked[m.Content] = true
		}
	}
	var open []string
	for _, q := range seeds {
		if q != "" && !asked[q] {
			open = append(open, q)
		}
	}
	if len(open) == 0 || g.rng == nil {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return open[g.rng.IntN(len(open))]
}

// toLLMMessages maps the transcript to chat roles: the interviewer is the
// assistant, the candidate is the user.
func toLLMMessages(history []types.ConversationMessage) []llm.Message {
	if len(history) == 0 {
		return []llm.Message{{Role: "user", Content: kickoffMessage}}
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	if history[0].Role == types.RoleInterviewer {
		msgs = append(msgs, llm.Message{Role: "user", Content: kickoffMessage})
	}
	for _, m := range history {
		role := "user"
		if m.Role == types.RoleInterviewer {
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return msgs
}
