package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

func jpegOfSize(size int) entity.EncodedImage {
	return entity.EncodedImage{MIMEType: entity.MIMEJPEG, Data: make([]byte, size)}
}

func TestAssessSDXLAtOneMegabyte(t *testing.T) {
	params := entity.GenerationParameters{Steps: 20, GuidanceScale: 5, Strength: 0.7}

	got := NewAssessor().Assess(jpegOfSize(1_100_000), entity.ModelSDXLImg2Img, params)

	assert.Equal(t, entity.RiskFactors{FileSize: 10, Resolution: 10, Model: 20, Parameters: 9}, got.Factors)
	assert.Equal(t, 49, got.RiskScore)
	assert.Equal(t, entity.RiskHigh, got.RiskLevel)
	assert.InDelta(t, 2.2, got.EstimatedMegapixels, 0.01)

	rec := got.Recommendations
	assert.True(t, rec.ShouldOptimize)
	assert.Equal(t, 512, rec.SuggestedMaxSize)
	assert.Equal(t, 0.7, rec.SuggestedQuality)
	assert.Equal(t, 20, rec.SuggestedSteps)
	assert.Equal(t, 5.0, rec.SuggestedGuidance)
	assert.Empty(t, rec.AlternativeModel)
	assert.Contains(t, got.Warnings, "High out-of-memory risk: consider a smaller image or fewer steps")
}

func TestAssessLevels(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		model     string
		params    entity.GenerationParameters
		wantLevel entity.RiskLevel
		wantAlt   string
	}{
		{
			name:      "tiny image on hosted api",
			size:      50_000,
			model:     "dall-e-3",
			params:    entity.GenerationParameters{Steps: 8, GuidanceScale: 1},
			wantLevel: entity.RiskLow,
		},
		{
			name:      "small image on canny",
			size:      200_000,
			model:     entity.ModelFluxCanny,
			params:    entity.GenerationParameters{Steps: 15, GuidanceScale: 5, Strength: 0.7},
			wantLevel: entity.RiskMedium,
		},
		{
			name:      "huge image on sdxl",
			size:      6 * mb,
			model:     entity.ModelSDXLImg2Img,
			params:    entity.GenerationParameters{Steps: 30, GuidanceScale: 10, Strength: 0.9},
			wantLevel: entity.RiskVeryHigh,
			wantAlt:   entity.ModelFluxVariations,
		},
		{
			name:      "huge image on fill has no alternative",
			size:      6 * mb,
			model:     entity.ModelFluxFill,
			params:    entity.GenerationParameters{Steps: 30, GuidanceScale: 10, Strength: 0.9},
			wantLevel: entity.RiskVeryHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAssessor().Assess(jpegOfSize(tt.size), tt.model, tt.params)
			assert.Equal(t, tt.wantLevel, got.RiskLevel)
			assert.Equal(t, tt.wantAlt, got.Recommendations.AlternativeModel)
			assert.GreaterOrEqual(t, got.RiskScore, 0)
			assert.LessOrEqual(t, got.RiskScore, 100)
		})
	}
}

func TestAssessVeryHighWarnings(t *testing.T) {
	got := NewAssessor().Assess(jpegOfSize(6*mb), entity.ModelSDXLImg2Img, entity.GenerationParameters{Steps: 30, GuidanceScale: 10, Strength: 0.9})

	assert.Len(t, got.Warnings, 3)
	assert.Equal(t, 384, got.Recommendations.SuggestedMaxSize)
	assert.Equal(t, 15, got.Recommendations.SuggestedSteps)
	assert.Equal(t, 50.0, EstimateMegapixels(1000*mb, entity.MIMEJPEG))
	assert.Equal(t, 0.1, EstimateMegapixels(10, entity.MIMEPNG))
}

func TestAssessIsMonotonic(t *testing.T) {
	assessor := NewAssessor()
	base := entity.GenerationParameters{Steps: 8, GuidanceScale: 1, Strength: 0}

	prev := -1
	for size := 0; size <= 12*mb; size += 256 * 1024 {
		score := assessor.Assess(jpegOfSize(size), entity.ModelFluxFill, base).RiskScore
		assert.GreaterOrEqual(t, score, prev, "size %d", size)
		prev = score
	}

	prev = -1
	for steps := 8; steps <= 30; steps++ {
		p := base
		p.Steps = steps
		score := assessor.Assess(jpegOfSize(2*mb), entity.ModelFluxFill, p).RiskScore
		assert.GreaterOrEqual(t, score, prev, "steps %d", steps)
		prev = score
	}

	prev = -1
	for g := 1.0; g <= 10; g += 0.5 {
		p := base
		p.GuidanceScale = g
		score := assessor.Assess(jpegOfSize(2*mb), entity.ModelFluxFill, p).RiskScore
		assert.GreaterOrEqual(t, score, prev, "guidance %v", g)
		prev = score
	}

	prev = -1
	for s := 0.0; s <= 0.9; s += 0.05 {
		p := base
		p.Strength = s
		score := assessor.Assess(jpegOfSize(2*mb), entity.ModelFluxFill, p).RiskScore
		assert.GreaterOrEqual(t, score, prev, "strength %v", s)
		prev = score
	}
}
