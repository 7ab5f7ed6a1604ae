package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	// ErrInvalidInput marks a request rejected before any workspace exists.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStageFailed marks a pipeline-fatal external tool failure.
	ErrStageFailed = errors.New("stage failed")
	// ErrMissingAsset marks a static template asset that could not be found.
	ErrMissingAsset = errors.New("missing static asset")
	// ErrWorkspace marks a workspace allocation or write failure.
	ErrWorkspace = errors.New("workspace error")
	// ErrNotFound indicates an unknown exposure.
	ErrNotFound = errors.New("not found")
	// ErrExpired indicates an exposure past its retention window.
	ErrExpired = errors.New("expired")
)

// ValidationError is an input validation failure for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidation creates a ValidationError.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StageError is a fatal failure of one pipeline stage.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStageFailed) match any stage failure.
func (e *StageError) Is(target error) bool { return target == ErrStageFailed }

// Detailer is implemented by errors that carry diagnostic output, such as
// the captured stderr of an external tool.
type Detailer interface {
	Detail() string
}

// Detail extracts diagnostic detail from err, if any.
func Detail(err error) string {
	var d Detailer
	if errors.As(err, &d) {
		return d.Detail()
	}
	return ""
}

// AssetError lists required static assets that are absent.
type AssetError struct {
	Dir     string
	Missing []string
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("missing static assets in %s: %s", e.Dir, strings.Join(e.Missing, ", "))
}

func (e *AssetError) Unwrap() error { return ErrMissingAsset }

// IsValidation reports whether err is an input validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsMissingAsset reports whether err is a missing static asset error.
func IsMissingAsset(err error) bool { return errors.Is(err, ErrMissingAsset) }

// IsFatal reports whether err aborts a pipeline run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStageFailed) || errors.Is(err, ErrMissingAsset) || errors.Is(err, ErrWorkspace)
}
