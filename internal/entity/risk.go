package entity

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very-high"
)

type RiskFactors struct {
	FileSize   int `json:"fileSize"`
	Resolution int `json:"resolution"`
	Model      int `json:"model"`
	Parameters int `json:"parameters"`
}

type RiskRecommendations struct {
	ShouldOptimize    bool    `json:"shouldOptimize"`
	SuggestedMaxSize  int     `json:"suggestedMaxSize"`
	SuggestedQuality  float64 `json:"suggestedQuality"`
	SuggestedSteps    int     `json:"suggestedSteps"`
	SuggestedGuidance float64 `json:"suggestedGuidance"`
	AlternativeModel  string  `json:"alternativeModel,omitempty"`
}

type RiskAssessment struct {
	RiskLevel           RiskLevel           `json:"riskLevel"`
	RiskScore           int                 `json:"riskScore"`
	EstimatedMegapixels float64             `json:"estimatedMegapixels"`
	Factors             RiskFactors         `json:"factors"`
	Recommendations     RiskRecommendations `json:"recommendations"`
	Warnings            []string            `json:"warnings"`
}

type RiskRequest struct {
	BaseImage string             `json:"baseImage" binding:"required"`
	Model     string             `json:"model"`
	Options   *GenerationOptions `json:"options"`
}
