package vocab

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/rehearse/pkg/types"
)

// minSpanRunes keeps short function words ("a", "in", "to") from being
// rewritten into similar-sounding terms.
const minSpanRunes = 4

// Correction is one substitution made by a [Corrector].
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
}

// Result is the output of [Corrector.Correct].
type Result struct {
	Text        string
	Corrections []Correction
}

// Corrector rewrites spans of a transcript that match known terms.
type Corrector struct {
	matcher *Matcher
}

// NewCorrector returns a Corrector using m. A nil m uses default thresholds.
func NewCorrector(m *Matcher) *Corrector {
	if m == nil {
		m = NewMatcher()
	}
	return &Corrector{matcher: m}
}

// Correct aligns text with terms. At each word it tries windows from the
// longest term's word count down to one word and takes the longest match, so
// multi-word terms win over partial single-word matches. Punctuation around
// a replaced span is kept. Spans already spelled like the term are left
// alone.
func (c *Corrector) Correct(text string, terms []string) Result {
	prepared := prepare(terms)
	tokens := strings.Fields(text)
	if len(prepared) == 0 || len(tokens) == 0 {
		return Result{Text: text}
	}
	maxWords := 1
	for _, t := range prepared {
		maxWords = max(maxWords, len(t.tokens))
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n := c.matchAt(tokens[i:], min(maxWords, len(tokens)-i), prepared, &out, &corrections)
		if n == 0 {
			out = append(out, tokens[i])
			n = 1
		}
		i += n
	}
	if len(corrections) == 0 {
		return Result{Text: text}
	}
	return Result{Text: strings.Join(out, " "), Corrections: corrections}
}

// matchAt tries windows at the head of tokens and returns how many tokens
// were consumed by a replacement, or 0.
func (c *Corrector) matchAt(tokens []string, maxN int, terms []term, out *[]string, corrections *[]Correction) int {
	for n := maxN; n >= 1; n-- {
		lead, _, _ := splitPunct(tokens[0])
		_, _, trail := splitPunct(tokens[n-1])
		words := make([]string, n)
		for i, tok := range tokens[:n] {
			_, words[i], _ = splitPunct(tok)
		}
		span := strings.Join(words, " ")
		if utf8.RuneCountInString(strings.ReplaceAll(span, " ", "")) < minSpanRunes {
			continue
		}
		corrected, conf, ok := c.matcher.match(span, terms)
		if !ok {
			continue
		}
		if corrected == span {
			*out = append(*out, tokens[:n]...)
			return n
		}
		*out = append(*out, lead+corrected+trail)
		*corrections = append(*corrections, Correction{Original: span, Corrected: corrected, Confidence: conf})
		return n
	}
	return 0
}

// splitPunct separates leading and trailing punctuation from a token.
func splitPunct(tok string) (lead, word, trail string) {
	start := strings.IndexFunc(tok, isWordRune)
	if start < 0 {
		return tok, "", ""
	}
	end := strings.LastIndexFunc(tok, isWordRune)
	_, size := utf8.DecodeRuneInString(tok[end:])
	return tok[:start], tok[start : end+size], tok[end+size:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Terms collects the correctable vocabulary of an interview: the company,
// the role title, the focus areas and extra configured terms. Duplicates
// are removed case-insensitively, first spelling wins.
func Terms(role types.RoleContext, extra ...string) []string {
	candidates := make([]string, 0, 2+len(role.FocusAreas)+len(extra))
	candidates = append(candidates, role.Company, role.Title)
	candidates = append(candidates, role.FocusAreas...)
	candidates = append(candidates, extra...)

	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, t := range candidates {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
