package catalog

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

func chat(id string, active bool, ctxWin, maxOut int, created time.Time) types.ModelDescriptor {
	return types.ModelDescriptor{
		ID:              id,
		Categories:      []types.Category{types.CategoryChat},
		Active:          active,
		ContextWindow:   ctxWin,
		MaxOutputTokens: maxOut,
		CreatedAt:       created,
	}
}

func voice(id string, cat types.Category, active bool) types.ModelDescriptor {
	return types.ModelDescriptor{ID: id, Categories: []types.Category{cat}, Active: active}
}

func TestRanker_Chat(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	models := []types.ModelDescriptor{
		chat("small", true, 8192, 8192, t0),
		chat("big-old", true, 131072, 8192, t0),
		chat("big-new", true, 131072, 8192, t0.Add(time.Hour)),
		chat("big-more-out", true, 131072, 32768, t0),
		chat("retired", false, 1_000_000, 100_000, t0),
		chat("tie-b", true, 4096, 0, t0),
		chat("tie-a", true, 4096, 0, t0),
		voice("whisper", types.CategorySTT, true),
	}

	got := NewRanker(Policy{}).Rank(types.CategoryChat, models)
	want := []string{"big-more-out", "big-new", "big-old", "small", "tie-a", "tie-b", "retired"}
	if !slices.Equal(got, want) {
		t.Errorf("Rank = %v\nwant   %v", got, want)
	}
}

func TestRanker_PreferredIDs(t *testing.T) {
	models := []types.ModelDescriptor{
		chat("a", true, 100, 0, time.Time{}),
		chat("b", true, 200, 0, time.Time{}),
		chat("c", true, 300, 0, time.Time{}),
		chat("d", false, 400, 0, time.Time{}),
	}
	p := Policy{Preferred: map[types.Category][]string{
		types.CategoryChat: {"a", "d", "b"},
	}}

	got := NewRanker(p).Rank(types.CategoryChat, models)
	// Inactive "d" is never promoted above active models.
	want := []string{"a", "b", "c", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
}

func TestRanker_QualityTiers(t *testing.T) {
	models := []types.ModelDescriptor{
		voice("whisper-large-v3-turbo", types.CategorySTT, true),
		voice("whisper-large-v3", types.CategorySTT, true),
		voice("distil-whisper", types.CategorySTT, false),
	}
	p := Policy{QualityTiers: map[string]int{
		"whisper-large-v3":       3,
		"whisper-large-v3-turbo": 2,
		"distil-whisper":         9,
	}}

	got := NewRanker(p).Rank(types.CategorySTT, models)
	want := []string{"whisper-large-v3", "whisper-large-v3-turbo", "distil-whisper"}
	if !slices.Equal(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
}

func TestRanker_EmptyCategory(t *testing.T) {
	got := NewRanker(Policy{}).Rank(types.CategoryTTS, []types.ModelDescriptor{chat("x", true, 1, 1, time.Time{})})
	if got == nil || len(got) != 0 {
		t.Errorf("Rank = %#v, want empty non-nil slice", got)
	}
}
