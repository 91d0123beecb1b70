package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCorruptMetadata       = errors.New("corrupt metadata")
	ErrUnsupportedDevice     = errors.New("unsupported device")
	ErrCorruptArchive        = errors.New("corrupt archive")
	ErrNotFound              = errors.New("not found")
	ErrAmbiguous             = errors.New("ambiguous query")
	ErrAlreadyInstalled      = errors.New("already installed")
	ErrInsufficientSpace     = errors.New("insufficient space")
	ErrUnsupportedCapability = errors.New("unsupported capability")
	ErrIOFailure             = errors.New("i/o failure")
	ErrCancelled             = errors.New("cancelled")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrIOFailure.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIOFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Cancelled converts a context error into an ErrCancelled failure. Non-context
// errors are returned unchanged.
func Cancelled(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrCancelled, stage, operation, "operation aborted", err)
	}
	return err
}

// AmbiguousError reports every identifier matching a query that should have
// resolved to exactly one record.
type AmbiguousError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s: %q matches %d entries (%s); use a longer query",
		ErrAmbiguous, e.Query, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// Is reports ErrAmbiguous as the marker for this error.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
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
		return "storypack failure"
	}
	return strings.Join(parts, ": ")
}
