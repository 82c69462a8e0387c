// Package vocab fixes speech-to-text errors in interview vocabulary.
//
// Transcription models regularly mishear the proper nouns an interview is
// about: company names, product names, technologies from the job
// description. A [Corrector] aligns spans of the transcript with a list of
// known terms by pronunciation and spelling similarity and substitutes the
// canonical spelling.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the span and each term. A term whose codes overlap the
//     span's codes is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the term with the
//     highest similarity above the phonetic threshold wins. Without a
//     phonetic candidate a stricter fuzzy threshold applies.
package vocab

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching term. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no term
// matches phonetically. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.fuzzyThreshold = threshold
		}
	}
}

// Matcher finds the known term a spoken span most likely stands for. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a Matcher configured with opts.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a known term with its phonetic codes computed once.
type term struct {
	text   string
	tokens []string
	codes  map[string]struct{}
}

// prepare computes the comparison data of terms, dropping blanks.
func prepare(terms []string) []term {
	out := make([]term, 0, len(terms))
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		out = append(out, term{
			text:   strings.TrimSpace(t),
			tokens: tokens,
			codes:  codesFor(tokens),
		})
	}
	return out
}

// Match reports the term span most likely stands for. When matched is false
// corrected equals span and confidence is 0.
func (m *Matcher) Match(span string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.match(span, prepare(terms))
}

func (m *Matcher) match(span string, terms []term) (string, float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(span))
	if len(terms) == 0 || lower == "" {
		return span, 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)

	var (
		best     string
		score    float64
		phonetic bool
	)
	for _, t := range terms {
		jw := similarity(tokens, t.tokens)
		switch {
		case overlap(codes, t.codes):
			if jw >= m.phoneticThreshold && (!phonetic || jw > score) {
				best, score, phonetic = t.text, jw, true
			}
		case !phonetic:
			if jw >= m.fuzzyThreshold && jw > score {
				best, score = t.text, jw
			}
		}
	}
	if best == "" {
		return span, 0, false
	}
	return best, score, true
}

// codesFor returns the union of the Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// minLengthRatio rejects spans much shorter or longer than the term, which
// Jaro-Winkler's prefix bonus would otherwise rate highly ("distributed"
// against "distributed systems").
const minLengthRatio = 0.7

// similarity scores a span against a term. Spans with the term's word count
// score as their weakest aligned word pair, so every word has to be close.
// Otherwise the space-stripped strings are compared, which catches one word
// split by the recogniser ("cooper netties" for "kubernetes").
func similarity(spanTokens, termTokens []string) float64 {
	if len(spanTokens) == len(termTokens) {
		worst := 1.0
		for i := range spanTokens {
			worst = min(worst, matchr.JaroWinkler(spanTokens[i], termTokens[i], false))
		}
		return worst
	}

	a, b := strings.Join(spanTokens, ""), strings.Join(termTokens, "")
	la, lb := float64(utf8.RuneCountInString(a)), float64(utf8.RuneCountInString(b))
	if min(la, lb)/max(la, lb) < minLengthRatio {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}
