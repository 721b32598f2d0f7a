package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vykso/backend/internal/models"
)

func TestClassify_TierByPlanName(t *testing.T) {
	tests := []struct {
		plan string
		tier string
	}{
		{"creator_basic", models.TierCreator},
		{"creator_max", models.TierCreator},
		{"free", models.TierCreator},
		{"", models.TierCreator},
		{"pro", models.TierCreator}, // no _pro suffix, not on the legacy list
		{"professional", models.TierCreator},
		{"creator_pro", models.TierProfessional},
		{"starter_pro", models.TierProfessional},
		{"premium_pro", models.TierProfessional},
		{"pro_pro", models.TierProfessional},
		{"max_pro", models.TierProfessional},
		{"PREMIUM_PRO", models.TierProfessional},
		{"Creator_Pro", models.TierProfessional},
		{"  creator_pro  ", models.TierProfessional},
		{"premium_pro_yearly", models.TierProfessional},
		{"starter_pro_annual", models.TierProfessional},
		{"totally_unknown_plan", models.TierCreator},
	}
	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			assert.Equal(t, tt.tier, Classify(tt.plan).Tier)
		})
	}
}

func TestClassify_CreatorParameters(t *testing.T) {
	cls := Classify("creator_basic")
	assert.Equal(t, models.AspectPortrait, cls.AspectRatio)
	assert.False(t, cls.CanSelectDuration)
	assert.Zero(t, cls.MinDuration)
	assert.Zero(t, cls.MaxDuration)
}

func TestClassify_ProfessionalParameters(t *testing.T) {
	cls := Classify("creator_pro")
	assert.Equal(t, models.AspectLandscape, cls.AspectRatio)
	assert.True(t, cls.CanSelectDuration)
	assert.Equal(t, MinProfessionalDuration, cls.MinDuration)
	assert.Equal(t, MaxProfessionalDuration, cls.MaxDuration)
}

func TestClassify_Deterministic(t *testing.T) {
	for range 100 {
		assert.Equal(t, Classify("premium_pro_yearly"), Classify("premium_pro_yearly"))
	}
}

func TestFixedDuration(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{models.ModelVeo, 8},
		{models.ModelVeoFast, 8},
		{"VEO3", 8},
		{models.ModelSora, 10},
		{models.ModelSoraPro720, 10},
		{"unknown-model", 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FixedDuration(tt.model), "model %s", tt.model)
	}
}

func TestCreditsForPlan(t *testing.T) {
	assert.Equal(t, 100, CreditsForPlan("creator_basic"))
	assert.Equal(t, 200, CreditsForPlan("creator_pro_yearly"))
	assert.Equal(t, 1200, CreditsForPlan("pro"))
	assert.Equal(t, 1800, CreditsForPlan("MAX_ANNUAL"))
	assert.Equal(t, 0, CreditsForPlan("no_such_plan"))
}
