package risk

import (
	"math"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

// Provider input field names grouped by the recommendation that caps them.
var (
	stepFields     = []string{"steps", "num_inference_steps"}
	guidanceFields = []string{"guidance", "guidance_scale", "guidanceScale"}
	sizeFields     = []string{"width", "height"}
)

// ApplyMitigation returns a copy of a provider input map with every known
// field lowered to the assessment's ceiling. Values are never raised.
func ApplyMitigation(params map[string]any, a entity.RiskAssessment) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	if !a.Recommendations.ShouldOptimize {
		return out
	}

	rec := a.Recommendations
	clampFields(out, stepFields, float64(rec.SuggestedSteps))
	clampFields(out, guidanceFields, rec.SuggestedGuidance)
	clampFields(out, sizeFields, float64(rec.SuggestedMaxSize))

	if v, ok := out["quality"]; ok {
		// quality is 0..1 for canvas-style encoders and 0..100 elsewhere
		ceiling := rec.SuggestedQuality
		if f, ok := toFloat(v); ok && f > 1 {
			ceiling *= 100
		}
		out["quality"] = clampValue(v, ceiling)
	}
	if v, ok := out["output_quality"]; ok {
		out["output_quality"] = clampValue(v, math.Round(rec.SuggestedQuality*100))
	}
	return out
}

// ApplyToParameters is ApplyMitigation for typed generation parameters.
func ApplyToParameters(p entity.GenerationParameters, a entity.RiskAssessment) entity.GenerationParameters {
	if !a.Recommendations.ShouldOptimize {
		return p
	}

	rec := a.Recommendations
	if rec.SuggestedSteps > 0 {
		p.Steps = min(p.Steps, rec.SuggestedSteps)
	}
	if rec.SuggestedGuidance > 0 {
		p.GuidanceScale = math.Min(p.GuidanceScale, rec.SuggestedGuidance)
	}
	if rec.SuggestedMaxSize > 0 {
		p.Width = min(p.Width, rec.SuggestedMaxSize)
		p.Height = min(p.Height, rec.SuggestedMaxSize)
	}
	return p
}

func clampFields(m map[string]any, fields []string, ceiling float64) {
	if ceiling <= 0 {
		return
	}
	for _, f := range fields {
		if v, ok := m[f]; ok {
			m[f] = clampValue(v, ceiling)
		}
	}
}

// clampValue keeps the numeric type of v. Non-numeric values pass through.
func clampValue(v any, ceiling float64) any {
	f, ok := toFloat(v)
	if !ok || f <= ceiling {
		return v
	}

	switch v.(type) {
	case int:
		return int(math.Floor(ceiling))
	case int32:
		return int32(math.Floor(ceiling))
	case int64:
		return int64(math.Floor(ceiling))
	case float32:
		return float32(ceiling)
	default:
		return ceiling
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
