package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies executor failures. The workflow treats every kind as a
// retryable validation signal rather than a fatal fault.
type ErrorKind string

const (
	ErrSyntax        ErrorKind = "syntax"
	ErrUnknownColumn ErrorKind = "unknownColumn"
	ErrTimeout       ErrorKind = "timeout"
	ErrResourceLimit ErrorKind = "resourceLimit"
)

// ExecutionError is a structured executor failure. Detail is safe to feed back
// into synthesis prompts but is never shown verbatim to the end user.
type ExecutionError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error (%s): %s", e.Kind, e.Detail)
}

// Feedback renders the error as corrective context for the synthesis agent.
func (e *ExecutionError) Feedback() string {
	switch e.Kind {
	case ErrUnknownColumn:
		return fmt.Sprintf("prior query referenced a column that does not exist: %s", e.Detail)
	case ErrSyntax:
		return fmt.Sprintf("prior query had a syntax error: %s", e.Detail)
	case ErrTimeout:
		return "prior query exceeded the execution time limit; produce a cheaper query"
	case ErrResourceLimit:
		return fmt.Sprintf("prior query exceeded resource limits: %s", e.Detail)
	default:
		return e.Detail
	}
}

// classifyError maps driver and guard errors onto the executor taxonomy.
// DuckDB prefixes its errors ("Parser Error", "Binder Error", ...), which is
// stable enough to classify on.
func classifyError(err error) *ExecutionError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ExecutionError{Kind: ErrTimeout, Detail: "query timed out"}
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "parser error") || strings.Contains(lower, "syntax error"):
		return &ExecutionError{Kind: ErrSyntax, Detail: trimDetail(msg)}
	case strings.Contains(lower, "binder error") && strings.Contains(lower, "column"):
		return &ExecutionError{Kind: ErrUnknownColumn, Detail: trimDetail(msg)}
	case strings.Contains(lower, "binder error") || strings.Contains(lower, "catalog error"):
		return &ExecutionError{Kind: ErrSyntax, Detail: trimDetail(msg)}
	case strings.Contains(lower, "out of memory") || strings.Contains(lower, "memory limit"):
		return &ExecutionError{Kind: ErrResourceLimit, Detail: trimDetail(msg)}
	default:
		return &ExecutionError{Kind: ErrSyntax, Detail: trimDetail(msg)}
	}
}

const maxDetailLen = 300

func trimDetail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetailLen {
		return s[:maxDetailLen] + "..."
	}
	return s
}
