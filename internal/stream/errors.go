package stream

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrGenerationActive is returned when a generation is started while another
// one is still running.
var ErrGenerationActive = errors.New("a generation is already in progress")

// genericErrorMessage is shown when nothing useful can be extracted from a
// provider error.
const genericErrorMessage = "An error occurred. Check the Logs tab for details."

// nestedError matches {"error":{"message":"..."}}.
type nestedError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// flatError matches {"error":"..."}.
type flatError struct {
	Error string `json:"error"`
}

// messageError matches {"message":"..."}.
type messageError struct {
	Message string `json:"message"`
}

// ClassifyError turns a raw provider error into a short human-readable
// message. Provider errors often wrap a JSON body; the known shapes are tried
// in order, then the first meaningful plain-text line, then a generic
// fallback. The raw error should still go to the diagnostic log.
func ClassifyError(err error) string {
	if err == nil {
		return genericErrorMessage
	}
	raw := err.Error()

	if body := jsonBody(raw); body != "" {
		var nested nestedError
		if json.Unmarshal([]byte(body), &nested) == nil && nested.Error.Message != "" {
			return nested.Error.Message
		}
		var flat flatError
		if json.Unmarshal([]byte(body), &flat) == nil && flat.Error != "" {
			return flat.Error
		}
		var msg messageError
		if json.Unmarshal([]byte(body), &msg) == nil && msg.Message != "" {
			return msg.Message
		}
	}

	if line := meaningfulLine(raw); line != "" {
		return line
	}
	return genericErrorMessage
}

// jsonBody extracts the JSON object embedded in an error string, which
// providers tend to append after a status prefix.
func jsonBody(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// meaningfulLine returns the first non-empty line that is not a transport
// prefix like "API Error:" or an "HTTP 500" status line.
func meaningfulLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "API Error:") {
			continue
		}
		if strings.HasPrefix(line, "HTTP ") {
			continue
		}
		return line
	}
	return ""
}
