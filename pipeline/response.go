package pipeline

import "foodproxy"

// SuccessResponse is the success envelope returned to clients.
type SuccessResponse struct {
	Status     string            `json:"status"`
	IsFood     bool              `json:"isFood"`
	Confidence float64           `json:"confidence"`
	GateReason string            `json:"gateReason"`
	TraceID    string            `json:"traceId"`
	Result     RecognitionResult `json:"result"`
}

// RecognitionResult is the payload half of a success envelope.
type RecognitionResult struct {
	Items      []foodproxy.NutritionItem `json:"items"`
	Total      foodproxy.NutritionTotals `json:"total"`
	ModelNotes *string                   `json:"modelNotes,omitempty"`
}

// ErrorResponse is the error envelope. Its code and descriptor fields always
// come from the closed taxonomy; the body stays authoritative even when the
// HTTP status is forced to 200 for legacy clients.
type ErrorResponse struct {
	Status      string   `json:"status"`
	ErrorCode   Code     `json:"errorCode"`
	UserTitle   string   `json:"userTitle"`
	UserMessage string   `json:"userMessage"`
	UserActions []string `json:"userActions"`
	AllowRetry  bool     `json:"allowRetry"`
	TraceID     string   `json:"traceId"`
}

// Result is the terminal outcome of one pipeline run: exactly one of
// Success or Error is set. HTTPStatus carries the descriptor-table status
// (200 for success) before any legacy-compatibility override.
type Result struct {
	Success    *SuccessResponse
	Error      *ErrorResponse
	HTTPStatus int
}
