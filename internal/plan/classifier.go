// Package plan maps billing plan identifiers to account tiers and the
// generation parameters a tier allows.
package plan

import (
	"strings"

	"github.com/vykso/backend/internal/models"
)

// Professional duration bounds, seconds inclusive.
const (
	MinProfessionalDuration = 6
	MaxProfessionalDuration = 60
)

// Fixed creator durations by model family.
const (
	FixedDurationVeo  = 8
	FixedDurationSora = 10
)

// legacyProPlans are plan names that predate the _pro suffix convention but
// still classify as professional.
var legacyProPlans = map[string]struct{}{
	"premium_pro": {},
	"pro_pro":     {},
	"max_pro":     {},
	"starter_pro": {},
}

// planCredits is the per-billing-cycle credit grant for each known plan.
// One credit buys one second of generated video.
var planCredits = map[string]int{
	models.PlanFree:        models.FreeStartingCredits,
	"creator_basic":        100,
	"creator_basic_yearly": 100,
	"creator_pro":          200,
	"creator_pro_yearly":   200,
	"creator_max":          300,
	"creator_max_yearly":   300,
	"starter":              600,
	"starter_annual":       600,
	"pro":                  1200,
	"pro_annual":           1200,
	"max":                  1800,
	"max_annual":           1800,
}

// Classification is the result of classifying a plan name.
type Classification struct {
	Tier              string
	AspectRatio       string
	CanSelectDuration bool
	MinDuration       int // zero unless CanSelectDuration
	MaxDuration       int // zero unless CanSelectDuration
}

// Classify maps a plan identifier to its tier and generation parameters.
// A plan is professional iff its name ends in "_pro" (case-insensitive) or
// appears on the legacy allow-list. Everything else, including the empty
// string, is creator: unknown plans degrade to the safe default rather than
// erroring.
func Classify(planName string) Classification {
	if isProfessional(planName) {
		return Classification{
			Tier:              models.TierProfessional,
			AspectRatio:       models.AspectLandscape,
			CanSelectDuration: true,
			MinDuration:       MinProfessionalDuration,
			MaxDuration:       MaxProfessionalDuration,
		}
	}
	return Classification{
		Tier:        models.TierCreator,
		AspectRatio: models.AspectPortrait,
	}
}

func isProfessional(planName string) bool {
	p := strings.ToLower(strings.TrimSpace(planName))
	if p == "" {
		return false
	}
	if strings.HasSuffix(p, "_pro") {
		return true
	}
	if _, ok := legacyProPlans[p]; ok {
		return true
	}
	// Suffix variants like premium_pro_yearly keep their professional
	// classification across billing intervals.
	for legacy := range legacyProPlans {
		if strings.HasPrefix(p, legacy+"_") {
			return true
		}
	}
	return false
}

// FixedDuration returns the creator-tier duration for a generation model.
// Veo-family models produce 8-second clips, Sora-family models 10-second.
func FixedDuration(model string) int {
	if strings.HasPrefix(strings.ToLower(model), "veo") {
		return FixedDurationVeo
	}
	return FixedDurationSora
}

// CreditsForPlan returns the credit grant for a plan name, or 0 for plans
// with no configured grant.
func CreditsForPlan(planName string) int {
	return planCredits[strings.ToLower(strings.TrimSpace(planName))]
}
