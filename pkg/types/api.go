package types

// ImageGenerationRequest is the payload of POST /v1/images/generations
// (OpenAI Images API compatible).
type ImageGenerationRequest struct {
	// Model identifier the client is targeting. Must match the served model
	// name or the loaded model path.
	// example: sd-turbo
	Model string `json:"model" example:"sd-turbo"`
	// Text description of the desired image(s).
	// example: A watercolor lighthouse at dusk
	Prompt string `json:"prompt" example:"A watercolor lighthouse at dusk"`
	// Number of images to generate (1..10). Defaults to 1.
	// example: 2
	N int `json:"n,omitempty" example:"2"`
	// Size of the generated images as "<width>x<height>". Defaults to 512x512.
	// example: 512x512
	Size string `json:"size,omitempty" example:"512x512"`
	// Response format. Only "b64_json" is supported.
	// example: b64_json
	ResponseFormat string `json:"response_format,omitempty" example:"b64_json"`
	// Accepted for OpenAI compatibility; ignored.
	Quality string `json:"quality,omitempty" example:"standard"`
	// Accepted for OpenAI compatibility; ignored.
	Style string `json:"style,omitempty"`
	// Text to steer generation away from.
	// example: blurry, low quality
	NegativePrompt string `json:"negative_prompt,omitempty" example:"blurry, low quality"`
	// Number of denoising steps (1..150). Defaults to 50.
	// example: 25
	NumInferenceSteps int `json:"num_inference_steps,omitempty" example:"25"`
	// Guidance scale (1..20). Defaults to 7.5.
	// example: 7.5
	GuidanceScale float64 `json:"guidance_scale,omitempty" example:"7.5"`
	// Seed for reproducibility. Image i of a batch uses seed+i. Omitted means
	// non-deterministic generation.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
}

// ImageData is a single generated image in the response.
type ImageData struct {
	// Base64-encoded PNG bytes.
	B64JSON string `json:"b64_json,omitempty"`
	// Unused; the server never persists images.
	URL string `json:"url,omitempty"`
	// Unused; prompts are passed through unrevised.
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageGenerationResponse is the envelope of POST /v1/images/generations.
type ImageGenerationResponse struct {
	// Unix timestamp of response creation.
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// Generated images in request index order.
	Data []ImageData `json:"data"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid size format: 512y512
	Error string `json:"error" example:"invalid size format: 512y512"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// Whether a model finished loading at startup.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
}
