package web

// errors.go turns handler errors into JSON responses. The technical error is
// logged with the request ID; the client gets the mapped user message.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/PageImport/internal/core"
	"github.com/JonMunkholm/PageImport/internal/logging"
	"github.com/JonMunkholm/PageImport/internal/pages"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var errBadRequest = errors.New("bad request")

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidConfig),
		errors.Is(err, core.ErrSourceUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownTemplate),
		errors.Is(err, core.ErrRunNotFound),
		errors.Is(err, pages.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// requestMessages cover errors raised by the HTTP layer itself.
var requestMessages = []struct {
	err error
	msg core.UserMessage
}{
	{errBadRequest, core.UserMessage{
		Message: "Request parameters are invalid",
		Action:  "Check the form fields sent with the file",
		Code:    "HTTP400",
	}},
	{errTooLarge, core.UserMessage{
		Message: "File is too large",
		Action:  "Split the file or raise IMPORT_MAX_FILE_SIZE",
		Code:    "FILE005",
	}},
	{errUnsupportedMedia, core.UserMessage{
		Message: "File does not look like CSV or TSV text",
		Action:  "Export the sheet as CSV and upload that file",
		Code:    "FILE006",
	}},
}

func messageFor(err error) core.UserMessage {
	for _, m := range requestMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return core.MapError(err)
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := messageFor(err)

	logger := logging.FromContext(r.Context())
	if status >= 500 {
		logger.Error("request error", "path", r.URL.Path, "status", status, "error", err, "code", msg.Code)
	} else {
		logger.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err, "code", msg.Code)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	// Client mistakes carry their detail; server errors do not leak it.
	if status < 500 {
		resp.Error = err.Error()
	}
	writeJSONStatus(w, status, resp)
}
