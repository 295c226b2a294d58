// Package risk scores generation requests for the chance of a provider-side
// CUDA out-of-memory failure and derives safer parameters.
package risk

import (
	"fmt"
	"math"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const mb = 1024 * 1024

// Relative GPU memory weight per model. Hosted third-party APIs do not run on
// our provider's GPUs and are nearly free of OOM risk.
var modelWeights = map[string]int{
	entity.ModelSDXLImg2Img:    20,
	entity.ModelFluxFill:       15,
	entity.ModelFluxVariations: 12,
	entity.ModelFluxCanny:      10,
	entity.ModelFluxDepth:      10,
	"dall-e-3":                 5,
	"stability-api":            5,
}

const defaultModelWeight = 10

// Assumed compression ratio against a 3-byte-per-pixel raw raster.
var compressionRatios = map[string]float64{
	entity.MIMEJPEG: 5,
	entity.MIMEWebP: 7.5,
	entity.MIMEPNG:  1.5,
	entity.MIMEGIF:  3,
}

const (
	defaultCompressionRatio = 5
	megapixelSafetyBias     = 1.2
	minMegapixels           = 0.1
	maxMegapixels           = 50
)

type tier struct {
	minScore int
	maxSize  int
	quality  float64
	steps    int
	guidance float64
}

// Ordered from the highest score threshold down.
var tiers = []tier{
	{minScore: 60, maxSize: 384, quality: 0.6, steps: 15, guidance: 5},
	{minScore: 40, maxSize: 512, quality: 0.7, steps: 20, guidance: 6},
	{minScore: 20, maxSize: 768, quality: 0.8, steps: 25, guidance: 7.5},
	{minScore: 0, maxSize: 1024, quality: 0.85, steps: 30, guidance: 10},
}

const optimizeScore = 30

type Assessor struct{}

func NewAssessor() *Assessor {
	return &Assessor{}
}

// Assess scores the request from four independent factors. The resolution
// factor is estimated from the payload size alone; the thresholds were tuned
// against that estimate, not against real pixel counts.
func (a *Assessor) Assess(img entity.EncodedImage, modelID string, params entity.GenerationParameters) entity.RiskAssessment {
	size := img.Size()
	megapixels := EstimateMegapixels(size, img.MIMEType)

	factors := entity.RiskFactors{
		FileSize:   fileSizeScore(size),
		Resolution: resolutionScore(megapixels),
		Model:      modelScore(modelID),
		Parameters: parameterScore(params),
	}
	score := min(factors.FileSize+factors.Resolution+factors.Model+factors.Parameters, 100)
	level := levelFor(score)

	t := tierFor(score)
	rec := entity.RiskRecommendations{
		ShouldOptimize:    score >= optimizeScore,
		SuggestedMaxSize:  t.maxSize,
		SuggestedQuality:  t.quality,
		SuggestedSteps:    t.steps,
		SuggestedGuidance: t.guidance,
	}
	if params.Steps > 0 {
		rec.SuggestedSteps = min(params.Steps, t.steps)
	}
	if params.GuidanceScale > 0 {
		rec.SuggestedGuidance = math.Min(params.GuidanceScale, t.guidance)
	}
	if level == entity.RiskVeryHigh && modelID == entity.ModelSDXLImg2Img {
		rec.AlternativeModel = entity.ModelFluxVariations
	}

	return entity.RiskAssessment{
		RiskLevel:           level,
		RiskScore:           score,
		EstimatedMegapixels: math.Round(megapixels*100) / 100,
		Factors:             factors,
		Recommendations:     rec,
		Warnings:            warnings(size, megapixels, level),
	}
}

// EstimateMegapixels guesses the pixel count from the compressed size, biased
// upwards by 20% so that the estimate errs on the safe side.
func EstimateMegapixels(sizeBytes int, mime string) float64 {
	ratio, ok := compressionRatios[mime]
	if !ok {
		ratio = defaultCompressionRatio
	}

	pixels := float64(sizeBytes) * ratio / 3
	mp := pixels / 1e6 * megapixelSafetyBias
	return math.Max(minMegapixels, math.Min(maxMegapixels, mp))
}

func fileSizeScore(size int) int {
	switch {
	case size > 5*mb:
		return 30
	case size > 3*mb:
		return 20
	case size > 1*mb:
		return 10
	default:
		return 5
	}
}

func resolutionScore(mp float64) int {
	switch {
	case mp > 8:
		return 30
	case mp > 4:
		return 20
	case mp > 2:
		return 10
	default:
		return 5
	}
}

func modelScore(modelID string) int {
	weight, ok := modelWeights[modelID]
	if !ok {
		weight = defaultModelWeight
	}
	return min(weight, 20)
}

func parameterScore(p entity.GenerationParameters) int {
	score := float64(p.Steps)/50*10 + p.GuidanceScale/20*5 + p.Strength*5
	return int(math.Min(20, math.Round(score)))
}

func levelFor(score int) entity.RiskLevel {
	switch {
	case score >= 60:
		return entity.RiskVeryHigh
	case score >= 40:
		return entity.RiskHigh
	case score >= 20:
		return entity.RiskMedium
	default:
		return entity.RiskLow
	}
}

func tierFor(score int) tier {
	for _, t := range tiers {
		if score >= t.minScore {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

func warnings(size int, mp float64, level entity.RiskLevel) []string {
	out := []string{}
	if size > 5*mb {
		out = append(out, fmt.Sprintf("Image is %.1fMB; files over 5MB often exhaust GPU memory", float64(size)/mb))
	}
	if mp > 8 {
		out = append(out, fmt.Sprintf("Estimated resolution is %.1fMP; consider resizing below 8MP", mp))
	}
	switch level {
	case entity.RiskVeryHigh:
		out = append(out, "Very high out-of-memory risk: parameters will be reduced before generation")
	case entity.RiskHigh:
		out = append(out, "High out-of-memory risk: consider a smaller image or fewer steps")
	}
	return out
}
