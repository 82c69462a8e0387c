package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/rehearse/internal/config"
	"github.com/MrWong99/rehearse/pkg/types"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Provider: config.ProviderEntry{Name: "groq", APIKey: "k"},
		Catalog: config.CatalogConfig{
			Preferred: map[types.Category][]string{types.CategoryChat: {"llama-3.3-70b-versatile"}},
		},
		Interview: config.InterviewConfig{
			Types:            map[string]config.InterviewType{"general": {ExpectedQuestions: 5}},
			ThinkingMessages: []string{"Thinking..."},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.InterviewChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("got %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone must not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_InterviewChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.InterviewConfig)
	}{
		{"type added", func(ic *config.InterviewConfig) { ic.Types["technical"] = config.InterviewType{ExpectedQuestions: 8} }},
		{"thinking messages", func(ic *config.InterviewConfig) { ic.ThinkingMessages = append(ic.ThinkingMessages, "Hmm...") }},
		{"profile", func(ic *config.InterviewConfig) {
			ic.Profiles = map[types.Difficulty]config.ProfileConfig{types.DifficultyIntense: {AutoStop: time.Minute}}
		}},
		{"completion", func(ic *config.InterviewConfig) { ic.Completion.Attempts = 5 }},
		{"vocabulary terms", func(ic *config.InterviewConfig) { ic.Vocabulary.Terms = append(ic.Vocabulary.Terms, "gRPC") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(&new.Interview)
			d := config.Diff(old, new)
			if !d.InterviewChanged {
				t.Error("expected InterviewChanged")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("interview changes must not require restart, got %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Provider.APIKey = "rotated"
	new.Catalog.Preferred[types.CategoryChat] = []string{"llama-3.1-8b-instant"}
	new.Store.Backend = config.BackendPostgres

	d := config.Diff(old, new)
	want := []string{"server", "provider", "catalog", "store"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}
