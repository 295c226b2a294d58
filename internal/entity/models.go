package entity

// Model identifiers accepted by the generation endpoint.
const (
	ModelSDXLImg2Img    = "sdxl-img2img"
	ModelFluxFill       = "flux-fill"
	ModelFluxCanny      = "flux-canny"
	ModelFluxDepth      = "flux-depth"
	ModelFluxVariations = "flux-variations"
)
