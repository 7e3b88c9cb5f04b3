package core

// error_messages.go maps technical errors to user-facing messages with codes
// that support staff can look up.
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Malformed record: quoting or record framing is broken
//	PARSE002 - Missing columns: a required column is absent from the header
//	PARSE003 - Duplicate columns: two header cells map to the same field
//	PARSE004 - Empty file: no header row was found
//	PARSE005 - Unsupported encoding: only UTF-8 is accepted
//	PARSE006 - Unsupported format: the file is neither CSV nor XLSX
//	PARSE007 - Unreadable workbook: the XLSX container could not be opened
//	PARSE008 - File too large: the upload exceeds the size limit
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field is empty
//	VAL002 - Value is too long
//	VAL003 - Invalid email address
//	VAL004 - Invalid phone number
//	VAL005 - Wrong number of columns
//	VAL006 - Invalid UTF-8
//
// # Reconciliation Errors (REC001-REC099)
//
//	REC001 - Concurrent modification: the customer changed while being updated
//	REC002 - Duplicate key: another writer created the same customer
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//	DB004 - Deadlock
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Upload cancelled
//	UPL002 - System busy
//	UPL003 - Upload not found or expired
//	UPL004 - Request cancelled
//	UPL005 - Request timed out
//	UPL006 - No file provided
//	UPL007 - Invalid upload option
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error.
//
// Sentinel errors are matched with errors.Is first. Other errors fall back to
// case-insensitive substring patterns; the first match wins.

import (
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

// ErrFileTooLarge is returned when an upload exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrNoFile is returned when an upload request carries no file part or body.
var ErrNoFile = errors.New("no file provided")

var (
	msgTooManyUploads = UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
	msgJobNotFound = UserMessage{
		Message: "Upload not found",
		Action:  "The upload may have expired. Please start a new upload",
		Code:    "UPL003",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a file with a header row and at least one customer",
		Code:    "PARSE004",
	}
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
		Code:    "PARSE008",
	}
	msgNoFile = UserMessage{
		Message: "No file was provided",
		Action:  "Attach a CSV or XLSX file in the 'file' field or as the request body",
		Code:    "UPL006",
	}
	msgStaleVersion = UserMessage{
		Message: "The customer was modified by another upload",
		Action:  "Upload the row again",
		Code:    "REC001",
	}
	msgDuplicateKey = UserMessage{
		Message: "Another writer created this customer at the same time",
		Action:  "Upload the row again",
		Code:    "REC002",
	}
)

// sentinelMessages maps wrapped sentinel errors to user messages.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrTooManyUploads, msgTooManyUploads},
	{ErrJobNotFound, msgJobNotFound},
	{ErrEmptyPayload, msgEmptyFile},
	{ErrFileTooLarge, msgFileTooLarge},
	{ErrNoFile, msgNoFile},
	{ErrStaleVersion, msgStaleVersion},
	{ErrDuplicateKey, msgDuplicateKey},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// Parse
	{"malformed record", UserMessage{"The file contains a malformed record", "Check quoting around the reported line", "PARSE001"}},
	{"missing required columns", UserMessage{"Required column is missing from the header", "Check that all required columns are present in your file", "PARSE002"}},
	{"duplicate columns", UserMessage{"The header maps two columns to the same field", "Remove or rename the duplicated column", "PARSE003"}},
	{"no header row", msgEmptyFile},
	{"unsupported encoding", UserMessage{"Unsupported character encoding", "Save the file as UTF-8", "PARSE005"}},
	{"unsupported format", UserMessage{"Unsupported file format", "Upload a CSV or XLSX file", "PARSE006"}},
	{"unsupported delimiter", UserMessage{"Unsupported CSV delimiter", "Use comma, semicolon, tab or pipe", "PARSE006"}},
	{"open workbook", UserMessage{"The workbook could not be opened", "Re-save the file as XLSX and try again", "PARSE007"}},

	// Validation
	{"required field", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL001"}},
	{"exceeds", UserMessage{"Value is too long", "Shorten the value to the allowed length", "VAL002"}},
	{"invalid email", UserMessage{"Invalid email address", "Use a plain address like name@example.com", "VAL003"}},
	{"phone number", UserMessage{"Invalid phone number", "Use digits with optional + ( ) - . and spaces", "VAL004"}},
	{"columns, got", UserMessage{"Wrong number of columns", "Check for missing or extra delimiters on the row", "VAL005"}},
	{"invalid utf-8", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "VAL006"}},

	// Upload lifecycle
	{"upload cancelled", UserMessage{"Upload was cancelled", "Start a new upload when ready", "UPL001"}},
	{"upload timed out", UserMessage{"Upload took too long", "Try uploading a smaller file", "UPL005"}},
	{"invalid async value", UserMessage{"Invalid upload option", "Use async=true or async=false", "UPL007"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try uploading a smaller file or check your connection", "UPL005"}},

	// Database
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB002"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB003"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},

	// Rate limiting
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
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

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
