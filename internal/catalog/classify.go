package catalog

import (
	"strings"

	"github.com/MrWong99/rehearse/pkg/provider/catalog"
	"github.com/MrWong99/rehearse/pkg/types"
)

// Classifier assigns raw catalogue entries to capability categories.
//
// Precedence: explicit per-id overrides, then capabilities declared by the
// provider, then identifier rules. An override mapping an id to an empty list
// excludes the model entirely.
type Classifier struct {
	overrides map[string][]types.Category
}

// NewClassifier returns a Classifier with the given per-id overrides. The map
// is copied.
func NewClassifier(overrides map[string][]types.Category) *Classifier {
	c := &Classifier{overrides: make(map[string][]types.Category, len(overrides))}
	for id, cats := range overrides {
		c.overrides[id] = append([]types.Category(nil), cats...)
	}
	return c
}

// declaredCapabilities maps provider capability tags to categories.
var declaredCapabilities = map[string]types.Category{
	"transcription":       types.CategorySTT,
	"audio.transcription": types.CategorySTT,
	"stt":                 types.CategorySTT,
	"speech":              types.CategoryTTS,
	"audio.speech":        types.CategoryTTS,
	"tts":                 types.CategoryTTS,
	"chat":                types.CategoryChat,
	"chat.completions":    types.CategoryChat,
	"completion":          types.CategoryChat,
}

// Identifier fragments, matched against the lower-cased model id.
var (
	sttMarkers      = []string{"whisper", "transcribe"}
	ttsMarkers      = []string{"tts", "speech", "playai", "orpheus"}
	excludedMarkers = []string{"embed", "moderation", "guard", "image", "dall-e", "realtime", "search"}
)

// Classify returns the categories m belongs to, in [types.Categories] order.
// A nil result means the model is unusable.
func (c *Classifier) Classify(m catalog.RawModel) []types.Category {
	if cats, ok := c.overrides[m.ID]; ok {
		return normalise(cats)
	}

	if len(m.Capabilities) > 0 {
		var cats []types.Category
		for _, tag := range m.Capabilities {
			if cat, ok := declaredCapabilities[strings.ToLower(tag)]; ok {
				cats = append(cats, cat)
			}
		}
		if len(cats) > 0 {
			return normalise(cats)
		}
	}

	id := strings.ToLower(m.ID)
	switch {
	case containsAny(id, sttMarkers):
		return []types.Category{types.CategorySTT}
	case containsAny(id, ttsMarkers):
		return []types.Category{types.CategoryTTS}
	case containsAny(id, excludedMarkers):
		return nil
	default:
		return []types.Category{types.CategoryChat}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// normalise deduplicates cats, drops unknown values and orders the result
// like [types.Categories].
func normalise(cats []types.Category) []types.Category {
	var out []types.Category
	for _, want := range types.Categories {
		for _, have := range cats {
			if have == want {
				out = append(out, want)
				break
			}
		}
	}
	return out
}
