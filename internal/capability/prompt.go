package capability

import (
	"fmt"
	"strings"

	"github.com/MrWong99/rehearse/pkg/types"
)

// ClosingMarker is appended by the model when it has chosen to end the
// interview. It is stripped before the text is spoken.
const ClosingMarker = "[END]"

// difficultyTone holds the interviewer persona per difficulty.
var difficultyTone = map[types.Difficulty]string{
	types.DifficultyRelaxed: "Be warm and encouraging. Give the candidate room to think, " +
		"rephrase a question if they seem stuck, and keep follow-ups gentle.",
	types.DifficultyStandard: "Be professional and neutral, like a typical first-round interviewer. " +
		"Ask a follow-up when an answer is vague.",
	types.DifficultyIntense: "Be direct and demanding, like a final-round panel. " +
		"Press on weak or generic answers, ask for specifics and numbers, and move on quickly.",
}

// promptInput is everything the system prompt is built from.
type promptInput struct {
	InterviewType  string
	Role           types.RoleContext
	Difficulty     types.Difficulty
	QuestionBudget int
	CandidateTurns int
	SeedQuestion   string

	// FinalQuestion is set when the next answer uses up the question budget.
	FinalQuestion bool
}

// buildSystemPrompt renders the interviewer instructions. Empty sections are
// omitted.
func buildSystemPrompt(in promptInput) string {
	var sb strings.Builder

	// ── Opening line ──────────────────────────────────────────────────────────
	kind := strings.TrimSpace(in.InterviewType)
	if kind == "" {
		kind = "job"
	}
	fmt.Fprintf(&sb, "You are an experienced interviewer conducting a spoken %s interview", kind)
	if pos := describePosition(in.Role); pos != "" {
		fmt.Fprintf(&sb, " for %s", pos)
	}
	sb.WriteString(".")

	// ── Context sections ──────────────────────────────────────────────────────
	if len(in.Role.FocusAreas) > 0 {
		sb.WriteString("\n\n## Focus Areas\n")
		for _, a := range in.Role.FocusAreas {
			fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(a))
		}
	}
	if s := strings.TrimSpace(in.Role.JobDescriptionSummary); s != "" {
		sb.WriteString("\n\n## Job Description\n")
		sb.WriteString(s)
	}
	if s := strings.TrimSpace(in.Role.ResumeSummary); s != "" {
		sb.WriteString("\n\n## Candidate Background\n")
		sb.WriteString(s)
	}

	// ── Style ─────────────────────────────────────────────────────────────────
	sb.WriteString("\n\n## Style\n")
	tone, ok := difficultyTone[in.Difficulty]
	if !ok {
		tone = difficultyTone[types.DifficultyStandard]
	}
	sb.WriteString(tone)
	sb.WriteString("\nYour words are spoken aloud: no markdown, no lists, no stage directions. " +
		"Keep each turn to at most four sentences and ask exactly one question per turn.")

	// ── Turn instruction ──────────────────────────────────────────────────────
	sb.WriteString("\n\n## This Turn\n")
	switch {
	case in.CandidateTurns == 0:
		sb.WriteString("Open the interview: greet the candidate, introduce yourself in one sentence, " +
			"and ask the first question.")
		if in.FinalQuestion {
			sb.WriteString(" Tell them it is the only question of this interview.")
		}
	case in.FinalQuestion:
		fmt.Fprintf(&sb, "React briefly to the last answer, then ask question %d of %d. ", in.CandidateTurns+1, in.QuestionBudget)
		sb.WriteString("Tell the candidate it is the final question.")
	default:
		fmt.Fprintf(&sb, "React briefly to the last answer, then ask question %d", in.CandidateTurns+1)
		if in.QuestionBudget > 0 {
			fmt.Fprintf(&sb, " of %d", in.QuestionBudget)
		}
		sb.WriteString(".")
	}
	if in.SeedQuestion != "" {
		fmt.Fprintf(&sb, "\nIf it fits the conversation, ask this question in your own words: %q", in.SeedQuestion)
	}
	fmt.Fprintf(&sb, "\nIf the interview has reached a natural end, say goodbye instead and finish with %s.", ClosingMarker)

	return sb.String()
}

// describePosition renders "the senior Backend Engineer role at Acme".
func describePosition(r types.RoleContext) string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("the ")
	if s := strings.TrimSpace(r.Seniority); s != "" {
		sb.WriteString(s)
		sb.WriteString(" ")
	}
	sb.WriteString(title)
	sb.WriteString(" role")
	if c := strings.TrimSpace(r.Company); c != "" {
		sb.WriteString(" at ")
		sb.WriteString(c)
	}
	return sb.String()
}

// stripClosingMarker removes every occurrence of [ClosingMarker] from text and
// reports whether one was present.
func stripClosingMarker(text string) (string, bool) {
	if !strings.Contains(text, ClosingMarker) {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, ClosingMarker, "")), true
}
