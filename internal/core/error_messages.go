package core

// # Error Codes Reference
//
// User-facing errors carry a code that users can quote to support staff.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: file exceeds UPLOAD_MAX_FILE_SIZE
//	FILE002 - Invalid CSV: unterminated quotes, bad encoding, stray quotes
//	FILE004 - No file: the load request carried no file
//	FILE005 - No header: the file lacked a detectable header row
//
// # Reorder Errors (ORD001-ORD099)
//
//	ORD001 - Index out of range: a drag referenced a column position that does not exist
//	ORD002 - No file loaded: reorder or export before any file was loaded
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - No rows: the loaded file has a header but no data rows
//	EXP002 - Handle revoked: the download link was superseded or the session ended
//
// # Session and Upload Errors (SES001-SES099, UPL001-UPL099)
//
//	SES001 - Session not found: expired or evicted after SESSION_IDLE_TIMEOUT
//	SES002 - Too many sessions: SESSION_MAX reached
//	UPL002 - System busy: all parse slots occupied
//	UPL004 - Request cancelled
//	UPL005 - Request timeout
//
// # Request Errors (REQ001, RATE001)
//
//	REQ001  - Invalid request: a form or JSON body could not be read
//	RATE001 - Rate limited: too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check the application
// logs for the original technical error.
//
// # Matching
//
// Sentinel errors are matched with errors.Is first, in table order. Errors
// that only exist as text (form parsing, rate limiting) fall back to a
// case-insensitive strings.Contains pass. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorRule maps either a sentinel or a text pattern to a user message.
type errorRule struct {
	target  error
	pattern string
	msg     UserMessage
}

var errorRules = []errorRule{
	// File errors. Size comes before the parse taxonomy because an oversized
	// upload surfaces from inside the parser.
	{
		target: ErrFileTooLarge,
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		target: ErrEmptyOrHeaderlessFile,
		msg: UserMessage{
			Message: "The file lacked a detectable header row",
			Action:  "Make sure the first line of the file lists the column names",
			Code:    "FILE005",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},
	{
		target: ErrParseFailure,
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check for unterminated quotes and save the file as UTF-8",
			Code:    "FILE002",
		},
	},

	// Reorder and export
	{
		target: ErrIndexOutOfRange,
		msg: UserMessage{
			Message: "That column position does not exist",
			Action:  "Reload the page and try the drag again",
			Code:    "ORD001",
		},
	},
	{
		target: ErrNoFileLoaded,
		msg: UserMessage{
			Message: "No file is loaded",
			Action:  "Choose a CSV file first",
			Code:    "ORD002",
		},
	},
	{
		target: ErrNoRows,
		msg: UserMessage{
			Message: "The file has no data rows to export",
			Action:  "Load a CSV file with at least one data row",
			Code:    "EXP001",
		},
	},
	{
		target: ErrHandleRevoked,
		msg: UserMessage{
			Message: "This download link has expired",
			Action:  "Export the file again to get a fresh link",
			Code:    "EXP002",
		},
	},

	// Sessions and capacity
	{
		target: ErrSessionNotFound,
		msg: UserMessage{
			Message: "Your session has expired",
			Action:  "Reload the page and load the file again",
			Code:    "SES001",
		},
	},
	{
		target: ErrTooManySessions,
		msg: UserMessage{
			Message: "The server is handling too many sessions",
			Action:  "Please try again in a few minutes",
			Code:    "SES002",
		},
	},
	{
		target: ErrTooManyParses,
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},

	// Text-only errors raised outside this package
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to load",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no rule matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	err := fmt.Errorf("load: %w", ErrNoRows)
//	msg := MapError(err)
//	// msg.Code == "EXP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, r := range errorRules {
		if r.target != nil && errors.Is(err, r.target) {
			return r.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, r := range errorRules {
		if r.pattern != "" && strings.Contains(errStr, r.pattern) {
			return r.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
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
