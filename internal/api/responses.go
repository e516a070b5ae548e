package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// InsufficientCreditsResponse is the 402 body for spends that exceed the
// account's balance. Have and Need let the client render a top-up prompt.
type InsufficientCreditsResponse struct {
	Error string `json:"error" example:"insufficient credits: you have 3 credits but need 5"`
	Have  int    `json:"have" example:"3"`
	Need  int    `json:"need" example:"5"`
}
