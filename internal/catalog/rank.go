package catalog

import (
	"cmp"
	"slices"

	"github.com/MrWong99/rehearse/pkg/types"
)

// Policy is the configurable part of the ranking heuristic.
type Policy struct {
	// Preferred lists model ids per category that outrank every model not on
	// the list, in list order. Only active models are promoted.
	Preferred map[types.Category][]string

	// QualityTiers assigns a quality tier to model ids. Higher is better.
	// It is the category signal for stt and tts, where providers report no
	// capacity metadata. Unlisted models have tier 0.
	QualityTiers map[string]int
}

// Ranker orders the models of one category into a strict total order.
type Ranker struct {
	policy Policy
}

// NewRanker returns a Ranker using p.
func NewRanker(p Policy) *Ranker {
	return &Ranker{policy: p}
}

// Rank returns the ids of the models in models that belong to cat, best
// first. Ordering keys, in order: active before inactive; preferred position;
// category signal (chat: context window then max output tokens, stt and tts:
// quality tier), all descending; creation time descending; id ascending. The
// final id key makes the order total.
func (r *Ranker) Rank(cat types.Category, models []types.ModelDescriptor) []string {
	var members []types.ModelDescriptor
	for _, m := range models {
		if m.HasCategory(cat) {
			members = append(members, m)
		}
	}

	pref := make(map[string]int, len(r.policy.Preferred[cat]))
	for i, id := range r.policy.Preferred[cat] {
		if _, dup := pref[id]; !dup {
			pref[id] = i
		}
	}
	prefRank := func(m types.ModelDescriptor) int {
		if i, ok := pref[m.ID]; ok && m.Active {
			return i
		}
		return len(pref)
	}

	slices.SortFunc(members, func(a, b types.ModelDescriptor) int {
		if a.Active != b.Active {
			if a.Active {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(prefRank(a), prefRank(b)); c != 0 {
			return c
		}
		if c := r.compareSignal(cat, a, b); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

// compareSignal compares the category-specific capacity signal, descending.
func (r *Ranker) compareSignal(cat types.Category, a, b types.ModelDescriptor) int {
	switch cat {
	case types.CategoryChat:
		if c := cmp.Compare(b.ContextWindow, a.ContextWindow); c != 0 {
			return c
		}
		return cmp.Compare(b.MaxOutputTokens, a.MaxOutputTokens)
	default:
		return cmp.Compare(r.policy.QualityTiers[b.ID], r.policy.QualityTiers[a.ID])
	}
}
