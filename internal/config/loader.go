package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/rehearse/pkg/types"
)

// APIKeyEnv overrides provider.api_key when set.
const APIKeyEnv = "REHEARSE_API_KEY"

// ValidProviderNames lists the provider names registered by the server.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "groq"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultProviderName      = "groq"
	DefaultProviderTimeout   = 60 * time.Second
	DefaultInterviewType     = "general"
	DefaultExpectedQuestions = 5
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies the environment
// override, validates the result and fills defaults. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.Provider.APIKey = key
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Parse is [LoadFromReader] over an in-memory document.
func Parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values. Zero values
// are accepted where [ApplyDefaults] fills them.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider
	validateProviderName(cfg.Provider.Name)
	if cfg.Provider.APIKey == "" {
		errs = append(errs, fmt.Errorf("provider.api_key is required (or set %s)", APIKeyEnv))
	}
	errs = appendNegative(errs, "provider.timeout", cfg.Provider.Timeout)

	// Catalog
	errs = appendNegative(errs, "catalog.ttl", cfg.Catalog.TTL)
	errs = appendNegative(errs, "catalog.fetch_timeout", cfg.Catalog.FetchTimeout)
	errs = appendNegative(errs, "catalog.retry_interval", cfg.Catalog.RetryInterval)
	for cat := range cfg.Catalog.Preferred {
		errs = appendCategory(errs, "catalog.preferred", cat)
	}
	for id, cats := range cfg.Catalog.Overrides {
		for _, cat := range cats {
			errs = appendCategory(errs, fmt.Sprintf("catalog.overrides[%q]", id), cat)
		}
	}

	// Fallback
	if cfg.Fallback.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("fallback.max_failures %d must not be negative", cfg.Fallback.MaxFailures))
	}
	if cfg.Fallback.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("fallback.half_open_max %d must not be negative", cfg.Fallback.HalfOpenMax))
	}
	errs = appendNegative(errs, "fallback.reset_timeout", cfg.Fallback.ResetTimeout)
	for cat := range cfg.Fallback.FriendlyMessages {
		errs = appendCategory(errs, "fallback.friendly_messages", cat)
	}

	errs = append(errs, validateInterview(&cfg.Interview)...)

	// Snapshot
	switch cfg.Snapshot.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if cfg.Snapshot.Redis.Addr == "" {
			errs = append(errs, errors.New("snapshot.redis.addr is required when backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("snapshot.backend %q is invalid; valid values: memory, redis", cfg.Snapshot.Backend))
	}

	// Store
	switch cfg.Store.Backend {
	case "", BackendMemory:
		slog.Warn("store.backend is memory; finished interviews are lost on restart")
	case BackendPostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres", cfg.Store.Backend))
	}

	return errors.Join(errs...)
}

func validateInterview(ic *InterviewConfig) []error {
	var errs []error

	for name, it := range ic.Types {
		if name == "" {
			errs = append(errs, errors.New("interview.types: empty type name"))
		}
		if it.ExpectedQuestions < 0 {
			errs = append(errs, fmt.Errorf("interview.types[%q].expected_questions %d must not be negative", name, it.ExpectedQuestions))
		}
	}
	if ic.DefaultType != "" && len(ic.Types) > 0 {
		if _, ok := ic.Types[ic.DefaultType]; !ok {
			errs = append(errs, fmt.Errorf("interview.default_type %q is not listed in interview.types", ic.DefaultType))
		}
	}
	if ic.DefaultDifficulty != "" && !ic.DefaultDifficulty.IsValid() {
		errs = append(errs, fmt.Errorf("interview.default_difficulty %q is invalid; valid values: relaxed, standard, intense", ic.DefaultDifficulty))
	}

	for d, p := range ic.Profiles {
		prefix := fmt.Sprintf("interview.profiles[%s]", d)
		if !d.IsValid() {
			errs = append(errs, fmt.Errorf("%s: unknown difficulty", prefix))
		}
		errs = appendNegative(errs, prefix+".silence_warning", p.SilenceWarning)
		errs = appendNegative(errs, prefix+".silence_critical", p.SilenceCritical)
		errs = appendNegative(errs, prefix+".auto_stop", p.AutoStop)
		if p.SilenceWarning > 0 && p.SilenceCritical > 0 && p.SilenceCritical <= p.SilenceWarning {
			errs = append(errs, fmt.Errorf("%s.silence_critical must be longer than silence_warning", prefix))
		}
	}

	if ic.MinRecordingBytes < 0 {
		errs = append(errs, fmt.Errorf("interview.min_recording_bytes %d must not be negative", ic.MinRecordingBytes))
	}
	errs = appendNegative(errs, "interview.min_recording_duration", ic.MinRecordingDuration)
	errs = appendNegative(errs, "interview.snapshot_ttl", ic.SnapshotTTL)
	errs = appendNegative(errs, "interview.thinking_interval", ic.ThinkingInterval)
	if ic.Completion.Attempts < 0 {
		errs = append(errs, fmt.Errorf("interview.completion.attempts %d must not be negative", ic.Completion.Attempts))
	}
	errs = appendNegative(errs, "interview.completion.initial", ic.Completion.Initial)
	errs = appendNegative(errs, "interview.completion.max", ic.Completion.Max)
	if ic.Temperature < 0 || ic.Temperature > 2 {
		errs = append(errs, fmt.Errorf("interview.temperature %.2f is out of range [0, 2]", ic.Temperature))
	}
	if ic.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("interview.max_tokens %d must not be negative", ic.MaxTokens))
	}
	for name, v := range map[string]float64{
		"phonetic_threshold": ic.Vocabulary.PhoneticThreshold,
		"fuzzy_threshold":    ic.Vocabulary.FuzzyThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("interview.vocabulary.%s %.2f is out of range [0, 1]", name, v))
		}
	}
	return errs
}

// ApplyDefaults fills zero values of cfg with built-in defaults. Values the
// consuming packages already default (catalog TTL, breaker knobs, difficulty
// profiles) are left zero.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProviderName
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = DefaultProviderTimeout
	}

	ic := &cfg.Interview
	if len(ic.Types) == 0 {
		ic.Types = map[string]InterviewType{DefaultInterviewType: {ExpectedQuestions: DefaultExpectedQuestions}}
	}
	if ic.DefaultType == "" {
		ic.DefaultType = firstTypeName(ic.Types)
	}
	for name, it := range ic.Types {
		if it.ExpectedQuestions == 0 {
			it.ExpectedQuestions = DefaultExpectedQuestions
			ic.Types[name] = it
		}
	}
	if ic.DefaultDifficulty == "" {
		ic.DefaultDifficulty = types.DifficultyStandard
	}

	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = BackendMemory
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
}

// firstTypeName returns DefaultInterviewType when present, else the
// alphabetically first name.
func firstTypeName(t map[string]InterviewType) string {
	if _, ok := t[DefaultInterviewType]; ok {
		return DefaultInterviewType
	}
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	slices.Sort(names)
	return names[0]
}

func appendNegative(errs []error, field string, d time.Duration) []error {
	if d < 0 {
		return append(errs, fmt.Errorf("%s %s must not be negative", field, d))
	}
	return errs
}

func appendCategory(errs []error, field string, c types.Category) []error {
	if !c.IsValid() {
		return append(errs, fmt.Errorf("%s: category %q is invalid; valid values: stt, tts, chat", field, c))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
