package core

// errors.go maps technical errors to messages with support codes.
//
// Codes by category:
//
//	ROW001-ROW099  row cannot become a page (no title, template mismatch, malformed record)
//	VAL001-VAL099  the store rejected a value
//	DB001-DB099    store and database failures
//	FILE001-FILE099 source file and attachment problems
//	RUN001-RUN099  run configuration and lifecycle
//	ERR000         anything unrecognised; check the logs
//
// Sentinel errors are matched with errors.Is first. Driver errors that
// arrive as plain text fall back to substring patterns.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/pages"
)

// UserMessage is an error explained for the person running the import.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// Order matters: the first matching sentinel wins.
var sentinelMessages = []sentinelMessage{
	{ErrNoIdentifier, UserMessage{
		Message: "Row has no title",
		Action:  "Fill in the title column; page names are derived from it",
		Code:    "ROW001",
	}},
	{ErrTemplateMismatch, UserMessage{
		Message: "A page with this name exists but uses a different template",
		Action:  "Rename the row's title or import with the matching template",
		Code:    "ROW002",
	}},
	{errMalformedRow, UserMessage{
		Message: "Row could not be parsed",
		Action:  "Check quoting and delimiters on this line",
		Code:    "ROW003",
	}},
	{pages.ErrInvalidValue, UserMessage{
		Message: "A value does not match its field type",
		Action:  "Correct the value shown in the reason and re-import the row",
		Code:    "VAL001",
	}},
	{pages.ErrInvalidName, UserMessage{
		Message: "Derived page name is not valid",
		Action:  "Use a title containing letters or digits",
		Code:    "VAL002",
	}},
	{pages.ErrNameTaken, UserMessage{
		Message: "A page with this name already exists",
		Action:  "Choose the create-unique or modify duplicate policy",
		Code:    "DB001",
	}},
	{pages.ErrNotFound, UserMessage{
		Message: "Referenced page does not exist",
		Action:  "Create the parent page first or check the path",
		Code:    "DB008",
	}},
	{ErrAttachment, UserMessage{
		Message: "Some files could not be attached",
		Action:  "Check the file paths or URLs listed in the notes",
		Code:    "FILE003",
	}},
	{ErrSourceUnreadable, UserMessage{
		Message: "File could not be read as delimited text",
		Action:  "Make sure the file has a header row and uses the chosen delimiter",
		Code:    "FILE002",
	}},
	{ErrInvalidConfig, UserMessage{
		Message: "Import settings are invalid",
		Action:  "Check delimiter, quote, duplicate policy and row limit",
		Code:    "RUN001",
	}},
	{ErrUnknownTemplate, UserMessage{
		Message: "Template does not exist",
		Action:  "Pick one of the templates listed by the server",
		Code:    "RUN002",
	}},
	{context.Canceled, UserMessage{
		Message: "Import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "RUN003",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Import timed out",
		Action:  "Split the file or raise IMPORT_TIMEOUT",
		Code:    "RUN004",
	}},
	{ErrRunNotFound, UserMessage{
		Message: "Import run not found",
		Action:  "The result may have expired. Start a new import",
		Code:    "RUN005",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "RUN006",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A page with this name already exists",
		Action:  "Choose the create-unique or modify duplicate policy",
		Code:    "DB001",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds the maximum size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Attach a CSV file to the request",
		Code:    "FILE004",
	}},
}

// defaultMessage is returned when nothing matches. Support staff should look
// up the technical error in the logs.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// errMalformedRow marks RowError values for MapError.
var errMalformedRow = errors.New("malformed row")

// Is lets errors.Is(err, errMalformedRow) match any *RowError.
func (e *RowError) Is(target error) bool {
	return target == errMalformedRow
}

// MapError converts a technical error to a user message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
