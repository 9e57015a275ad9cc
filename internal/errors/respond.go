package errors

import (
	"encoding/json"
	"net/http"

	"github.com/tallyd/tallyd/internal/server/middleware"
)

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes the standard
// JSON error envelope with the matching HTTP status. The request ID is taken
// from the request context when present.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	envelope := Ensure(err)

	requestID := ""
	if r != nil {
		requestID = middleware.GetRequestID(r.Context())
	}

	response := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			RequestID: requestID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatusFromCode(envelope.Code))
	_ = json.NewEncoder(w).Encode(response)
}
