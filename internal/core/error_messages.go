package core

// error_messages.go turns technical errors into messages a dashboard user can
// act on, each with a code to quote when asking for help.
//
//	FILE001  file too large                 FILE004  no file provided
//	FILE002  unreadable source              FILE005  empty file
//	FILE003  encoding error                 FILE006  unsupported format
//	VAL001   missing required columns       VAL003   validation failed
//	VAL002   invalid number                 VAL004   not found
//	AUTH001  invalid password               AUTH002  session expired
//	UPL001   server busy                    UPL003   context deadline exceeded
//	UPL002   context canceled               UPL004   invalid upload
//	DB001    connection refused             DB002    timeout
//	RATE001  rate limit                     ERR000   anything else
//
// The right-hand phrase is what MapError looks for in the lowercased error
// text. Phrases are tried in table order and the first hit wins, so a
// specific phrase must precede any phrase it contains ("context deadline
// exceeded" before "timeout").

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// messages holds the text of every code.
var messages = map[string]UserMessage{
	"FILE001": {"File exceeds maximum size limit", "Split the workbook or remove unused sheets", "FILE001"},
	"FILE002": {"The file could not be read", "Check that the file is a valid .xlsx or .csv workbook", "FILE002"},
	"FILE003": {"File contains invalid characters", "Save the file as UTF-8 or GB18030", "FILE003"},
	"FILE004": {"No file was selected", "Please select a workbook to validate", "FILE004"},
	"FILE005": {"The workbook has no data rows", "Add at least one indicator row below the header", "FILE005"},
	"FILE006": {"File type is not supported", "Upload an .xlsx, .xlsm or .csv file", "FILE006"},

	"VAL001": {"Required column is missing from the workbook", "Check that the header row contains 表单, 指标名称 and 单位", "VAL001"},
	"VAL002": {"Invalid number format detected", "Use plain decimal numbers without units or separators", "VAL002"},
	"VAL003": {"Request parameters are invalid", "Check the selected indicators and years", "VAL003"},
	"VAL004": {"No data for the selection", "Pick another indicator, source or year", "VAL004"},

	"AUTH001": {"The password is incorrect", "Check the password and try again", "AUTH001"},
	"AUTH002": {"Your session has expired", "Please log in again", "AUTH002"},

	"UPL001": {"Too many workbooks are being processed", "Please wait a moment and try again", "UPL001"},
	"UPL002": {"Request was cancelled", "Please try again", "UPL002"},
	"UPL003": {"Request timed out", "Try a smaller file or try again later", "UPL003"},
	"UPL004": {"The upload could not be processed", `Attach the workbook as a multipart form field named "file"`, "UPL004"},

	"DB001": {"Unable to connect to the audit database", "Please try again in a few moments", "DB001"},
	"DB002": {"Operation timed out", "Please try again later", "DB002"},

	"RATE001": {"Too many requests", "Please wait a moment before trying again", "RATE001"},
}

// unknownMessage is the ERR000 fallback. The technical error is only in the logs.
var unknownMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// phrases maps lowercase error text to codes, most specific first.
var phrases = []struct {
	phrase string
	code   string
}{
	{"file too large", "FILE001"},
	{"encoding error", "FILE003"},
	{"unsupported format", "FILE006"},
	{"unreadable source", "FILE002"},
	{"no file provided", "FILE004"},
	{"empty file", "FILE005"},
	{"missing required columns", "VAL001"},
	{"invalid number", "VAL002"},
	{"validation failed", "VAL003"},
	{"not found", "VAL004"},
	{"invalid password", "AUTH001"},
	{"session expired", "AUTH002"},
	{"server busy", "UPL001"},
	{"context canceled", "UPL002"},
	{"context deadline exceeded", "UPL003"},
	{"invalid upload", "UPL004"},
	{"connection refused", "DB001"},
	{"timeout", "DB002"},
	{"rate limit", "RATE001"},
}

// MapError returns the user message for err, or the ERR000 message when
// nothing matches. A nil error maps to the zero UserMessage.
//
//	MapError(&SchemaError{Missing: []string{"单位"}}).Code // "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	// Structural errors carry their code regardless of wording.
	var (
		empty  *EmptyTableError
		schema *SchemaError
	)
	switch {
	case errors.As(err, &empty):
		return messages["FILE005"]
	case errors.As(err, &schema):
		return messages["VAL001"]
	}

	text := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(text, p.phrase) {
			return messages[p.code]
		}
	}
	return unknownMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action", or "" for nil.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != unknownMessage.Code
}

// UserError pairs a technical error with the message shown for it.
// Error returns the user message; Unwrap returns the technical error.
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

// NewUserError wraps err with its mapped message. It returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
