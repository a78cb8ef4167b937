package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// errorBody is the structured failure body of the answer endpoint.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// FailureMessage maps a non-2xx answer response to the message shown in the
// widget's error state.
func FailureMessage(status int, body []byte) string {
	detail := strings.TrimSpace(string(body))
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Error != "" || parsed.Details != "") {
		detail = parsed.Error
		if parsed.Details != "" {
			detail = parsed.Details
		}
	}

	switch status {
	case http.StatusNotFound:
		return "answer endpoint not found"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "authentication error"
	case http.StatusInternalServerError:
		if detail == "" {
			detail = "unknown error"
		}
		return fmt.Sprintf("server error: %s", detail)
	}
	if detail == "" {
		return fmt.Sprintf("request failed (%d)", status)
	}
	return fmt.Sprintf("request failed (%d): %s", status, detail)
}
