// internal/circulation/errors.go
package circulation

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// MessageUnknownError is shown when the server rejected a check-in without
// saying why.
const MessageUnknownError = "unknown error"

// FieldItemBarcode is the form field rejections attach to by default.
const FieldItemBarcode = "itemBarcode"

// RejectedError is a check-in the server refused. Field names the form
// field the message belongs to.
type RejectedError struct {
	StatusCode int
	Field      string
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("check-in rejected (%d): %s: %s", e.StatusCode, e.Field, e.Message)
}

// ValidationError is input the desk refuses before calling the server.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type errorBody struct {
	Errors []struct {
		Message    string `json:"message"`
		Parameters []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"parameters"`
	} `json:"errors"`
}

// ParseRejection classifies an error response of the check-in endpoint by
// its content type.
func ParseRejection(statusCode int, contentType string, body []byte) *RejectedError {
	rej := &RejectedError{StatusCode: statusCode, Field: FieldItemBarcode}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" {
		rej.Message = strings.TrimSpace(string(body))
		if rej.Message == "" {
			rej.Message = MessageUnknownError
		}
		return rej
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Errors) == 0 || len(parsed.Errors[0].Parameters) == 0 {
		rej.Message = MessageUnknownError
		return rej
	}

	param := parsed.Errors[0].Parameters[0]
	if param.Key != "" {
		rej.Field = param.Key
	}
	rej.Message = param.Value
	return rej
}
