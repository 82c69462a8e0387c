package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only interview rules and the log level are applied without a restart;
// everything else sets RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewChanged is true when any interview rule changed. New
	// interviews pick the rules up; running ones keep theirs.
	InterviewChanged bool

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing relevant changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.InterviewChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.InterviewChanged = !interviewEqual(&old.Interview, &new.Interview)

	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if !serverEqual(oldSrv, newSrv) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providerEqual(old.Provider, new.Provider) {
		d.RestartRequired = append(d.RestartRequired, "provider")
	}
	if !catalogEqual(&old.Catalog, &new.Catalog) {
		d.RestartRequired = append(d.RestartRequired, "catalog")
	}
	if !fallbackEqual(&old.Fallback, &new.Fallback) {
		d.RestartRequired = append(d.RestartRequired, "fallback")
	}
	if old.Snapshot != new.Snapshot {
		d.RestartRequired = append(d.RestartRequired, "snapshot")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	return d
}

func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.TraceSampleRatio != b.TraceSampleRatio {
		return false
	}
	if !slices.Equal(a.AllowedOrigins, b.AllowedOrigins) {
		return false
	}
	switch {
	case a.TLS == nil && b.TLS == nil:
		return true
	case a.TLS == nil || b.TLS == nil:
		return false
	}
	return *a.TLS == *b.TLS
}

func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Timeout == b.Timeout && a.Voice == b.Voice && a.Language == b.Language &&
		len(a.Options) == len(b.Options)
}

func catalogEqual(a, b *CatalogConfig) bool {
	return a.TTL == b.TTL && a.FetchTimeout == b.FetchTimeout && a.RetryInterval == b.RetryInterval &&
		maps.EqualFunc(a.Preferred, b.Preferred, slices.Equal[[]string]) &&
		maps.Equal(a.QualityTiers, b.QualityTiers) &&
		maps.EqualFunc(a.Overrides, b.Overrides, slices.Equal[[]string])
}

func fallbackEqual(a, b *FallbackConfig) bool {
	return a.MaxFailures == b.MaxFailures && a.ResetTimeout == b.ResetTimeout &&
		a.HalfOpenMax == b.HalfOpenMax && maps.Equal(a.FriendlyMessages, b.FriendlyMessages)
}

func interviewEqual(a, b *InterviewConfig) bool {
	return a.DefaultType == b.DefaultType && a.DefaultDifficulty == b.DefaultDifficulty &&
		maps.Equal(a.Types, b.Types) && maps.Equal(a.Profiles, b.Profiles) &&
		a.MinRecordingBytes == b.MinRecordingBytes && a.MinRecordingDuration == b.MinRecordingDuration &&
		a.SnapshotTTL == b.SnapshotTTL && a.Completion == b.Completion &&
		slices.Equal(a.ThinkingMessages, b.ThinkingMessages) && a.ThinkingInterval == b.ThinkingInterval &&
		a.Temperature == b.Temperature && a.MaxTokens == b.MaxTokens &&
		vocabularyEqual(a.Vocabulary, b.Vocabulary)
}

func vocabularyEqual(a, b VocabularyConfig) bool {
	return a.Enabled == b.Enabled && slices.Equal(a.Terms, b.Terms) &&
		a.PhoneticThreshold == b.PhoneticThreshold && a.FuzzyThreshold == b.FuzzyThreshold
}
