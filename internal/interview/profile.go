package interview

import (
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

// Profile holds the timing rules that depend on difficulty.
type Profile struct {
	// SilenceWarning and SilenceCritical are measured from entering
	// waiting_for_candidate.
	SilenceWarning  time.Duration
	SilenceCritical time.Duration

	// AutoStop force-stops a recording after this long. Zero disables it.
	AutoStop time.Duration
}

// DefaultProfiles are the built-in difficulty profiles.
var DefaultProfiles = map[types.Difficulty]Profile{
	types.DifficultyRelaxed:  {SilenceWarning: 45 * time.Second, SilenceCritical: 90 * time.Second},
	types.DifficultyStandard: {SilenceWarning: 25 * time.Second, SilenceCritical: 50 * time.Second},
	types.DifficultyIntense:  {SilenceWarning: 12 * time.Second, SilenceCritical: 25 * time.Second, AutoStop: 45 * time.Second},
}

// ProfileFor returns the profile for d from profiles, falling back to the
// built-in profile and finally to standard.
func ProfileFor(profiles map[types.Difficulty]Profile, d types.Difficulty) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	if p, ok := DefaultProfiles[d]; ok {
		return p
	}
	return DefaultProfiles[types.DifficultyStandard]
}
