package types

// ModelObject describes one servable model for GET /v1/models
// (OpenAI API compatible).
type ModelObject struct {
	// Identifier clients pass in the request "model" field.
	// example: sd-turbo
	ID string `json:"id" example:"sd-turbo"`
	// Always "model".
	Object string `json:"object" example:"model"`
	// Unix timestamp.
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// example: diffusers
	OwnedBy string `json:"owned_by" example:"diffusers"`
}

// ModelsResponse is the OpenAI list envelope for GET /v1/models.
type ModelsResponse struct {
	Object string        `json:"object" example:"list"`
	Data   []ModelObject `json:"data"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall engine state: loading, ready or error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Path or identifier the model was loaded from.
	// example: /models/sd-turbo.dduf
	ModelPath string `json:"model_path,omitempty" example:"/models/sd-turbo.dduf"`
	// Externally advertised model name.
	// example: sd-turbo
	ServedModelName string `json:"served_model_name,omitempty" example:"sd-turbo"`
	// Accelerator in use: cpu, cuda or mps.
	// example: cuda
	Device string `json:"device,omitempty" example:"cuda"`
	// Numeric precision in use: float32 or float16.
	// example: float16
	Precision string `json:"precision,omitempty" example:"float16"`
	// Current generation queue length.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// In-flight generations (0 or 1; inference is serialized).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Total images generated since startup.
	// example: 128
	ImagesTotal uint64 `json:"images_total" example:"128"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
