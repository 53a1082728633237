// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for repograph.
//
// Every failure in the pipeline is classified by a Kind. Kinds drive three
// behaviors: the retry policy applied by higher layers, the exit code of the
// CLI, and the {kind, message} shape surfaced on query responses and job
// records. Library code wraps underlying errors with New/Wrap; the CLI and
// the HTTP binding translate at the boundary and never leak raw errors.
//
// # Exit Codes
//
//   - ExitSuccess (0): successful execution
//   - ExitInvalidInput (2): malformed request or arguments
//   - ExitFetchFailed (3): repository unreachable
//   - ExitParseFailed (4): zero files parseable
//   - ExitIndexUnavailable (5): ANN index unreachable
//   - ExitQueryFailed (6): search or analyze failed
package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Kind classifies an error for retry policy, exit codes, and API responses.
type Kind string

const (
	// KindInvalidInput marks malformed requests. Surfaced verbatim, no retry.
	KindInvalidInput Kind = "InvalidInput"

	// KindFetchFailed marks an unreachable repository. The owning job fails;
	// no retry at this layer.
	KindFetchFailed Kind = "FetchFailed"

	// KindParseFailed marks a parse run in which zero files succeeded.
	// Partial per-file failures are logged and ignored, not classified here.
	KindParseFailed Kind = "ParseFailed"

	// KindEmbedFailed marks a model load or vectorization error.
	// Retried once by the coordinator, then the job fails.
	KindEmbedFailed Kind = "EmbedFailed"

	// KindIndexUnavailable marks a refused or timed-out connection to the
	// ANN index. Retried 3x with 1s, 2s, 4s backoff.
	KindIndexUnavailable Kind = "IndexUnavailable"

	// KindIndexNotReady marks a collection whose vectors are accepted but
	// whose ANN structure is still building. Queries degrade to the
	// keyword-scan fallback; the indexer treats it as success.
	KindIndexNotReady Kind = "IndexNotReady"

	// KindTimeout marks a per-phase deadline exceeded.
	KindTimeout Kind = "Timeout"

	// KindNotFound marks an unknown job id or a missing graph file.
	KindNotFound Kind = "NotFound"

	// KindInternal marks any unexpected failure, captured with context.
	KindInternal Kind = "Internal"
)

// CLI exit codes.
const (
	ExitSuccess          = 0
	ExitInvalidInput     = 2
	ExitFetchFailed      = 3
	ExitParseFailed      = 4
	ExitIndexUnavailable = 5
	ExitQueryFailed      = 6
)

// Error carries a classified failure through the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil if err is nil.
// If err is already an *Error, its kind is preserved and only the
// message context is added.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		kind = existing.Kind
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from any error. Unclassified errors are Internal;
// deadline errors are Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ExitCode maps an error to the CLI exit code for its kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case KindInvalidInput:
		return ExitInvalidInput
	case KindFetchFailed:
		return ExitFetchFailed
	case KindParseFailed:
		return ExitParseFailed
	case KindIndexUnavailable, KindIndexNotReady:
		return ExitIndexUnavailable
	default:
		return ExitQueryFailed
	}
}

// Format renders the error for terminal display. When noColor is true the
// output is plain text; otherwise the kind is highlighted in red.
func (e *Error) Format(noColor bool) string {
	if noColor {
		return fmt.Sprintf("Error [%s]: %s\n", e.Kind, e.messageWithCause())
	}
	red := color.New(color.FgRed, color.Bold)
	return fmt.Sprintf("%s %s\n", red.Sprintf("Error [%s]:", e.Kind), e.messageWithCause())
}

func (e *Error) messageWithCause() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// ToJSON returns the wire shape used by query responses and job records.
func (e *Error) ToJSON() map[string]any {
	return map[string]any{
		"kind":    string(e.Kind),
		"message": e.messageWithCause(),
	}
}

// Fatal prints the error to stderr and exits with its mapped exit code.
// Intended for CLI command handlers only.
func Fatal(err error, noColor bool) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindInternal, Message: err.Error()}
	}
	fmt.Fprint(os.Stderr, e.Format(noColor))
	os.Exit(ExitCode(err))
}

// As is a convenience re-export so callers need only this package.
func As(err error, target any) bool { return errors.As(err, target) }

// Is is a convenience re-export so callers need only this package.
func Is(err, target error) bool { return errors.Is(err, target) }
