package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputNotFound     = errors.New("input not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExternalTool      = errors.New("external tool error")
	ErrTimeout           = errors.New("timeout")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJobID    = errors.New("duplicate job id")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrStoreFull         = errors.New("job store full")
	ErrCancelled         = errors.New("cancelled")
	ErrIO                = errors.New("io error")
)

// ErrorKind is the stable, machine readable classification of a failure.
type ErrorKind string

const (
	KindInputNotFound     ErrorKind = "input_not_found"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindExternalTool      ErrorKind = "external_tool"
	KindTimeout           ErrorKind = "timeout"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindJobNotFound       ErrorKind = "job_not_found"
	KindDuplicateJobID    ErrorKind = "duplicate_job_id"
	KindValidation        ErrorKind = "validation"
	KindConfiguration     ErrorKind = "configuration"
	KindStoreFull         ErrorKind = "store_full"
	KindCancelled         ErrorKind = "cancelled"
	KindIO                ErrorKind = "io"
	KindInternal          ErrorKind = "internal"
)

var kindMarkers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrInputNotFound, KindInputNotFound},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrTimeout, KindTimeout},
	{ErrCancelled, KindCancelled},
	{ErrExternalTool, KindExternalTool},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrJobNotFound, KindJobNotFound},
	{ErrDuplicateJobID, KindDuplicateJobID},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrStoreFull, KindStoreFull},
	{ErrIO, KindIO},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err. Deadline and cancellation errors from the context
// package map to timeout and cancelled even when no marker was attached.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindMarkers {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// Message returns a human readable description for err suitable for storing on
// a failed job.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return string(KindOf(err))
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
