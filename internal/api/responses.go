package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// InsufficientCreditsResponse is returned with HTTP 402 when a spend is
// rejected. The boolean flag is the machine-readable signal clients key on.
type InsufficientCreditsResponse struct {
	Error               string `json:"error" example:"insufficient credits"`
	InsufficientCredits bool   `json:"insufficient_credits" example:"true"`
}
