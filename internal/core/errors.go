package core

import (
	"errors"
	"fmt"

	"github.com/csvreorder/csvreorder/internal/reorder"
	"github.com/csvreorder/csvreorder/internal/tabular"
)

var (
	// ErrEmptyOrHeaderlessFile means the parser found no column names.
	ErrEmptyOrHeaderlessFile = errors.New("file has no detectable header row")

	// ErrParseFailure wraps malformed input such as unterminated quotes or bad encoding.
	ErrParseFailure = errors.New("invalid csv")

	// ErrIndexOutOfRange is returned by a reorder that names a missing position.
	ErrIndexOutOfRange = reorder.ErrIndexOutOfRange

	// ErrFileTooLarge is returned when an upload exceeds UPLOAD_MAX_FILE_SIZE.
	ErrFileTooLarge = tabular.ErrFileTooLarge

	ErrNoFileLoaded    = errors.New("no file loaded")
	ErrNoRows          = errors.New("no rows to export")
	ErrHandleRevoked   = errors.New("download handle revoked")
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrTooManyParses is returned when all parse slots stay occupied for the
	// limiter's wait time. Clients should retry after a short delay.
	ErrTooManyParses = errors.New("too many concurrent uploads, please try again later")
)

// classifyParseError maps a parser error onto the session error taxonomy.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, tabular.ErrHeaderless):
		return fmt.Errorf("%w: %w", ErrEmptyOrHeaderlessFile, err)
	case errors.Is(err, ErrFileTooLarge):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrParseFailure, err)
	}
}
