package platform

import (
	"errors"
	"fmt"
)

// FailureKind classifies pipeline failures.
type FailureKind string

// Failure kinds. Validation, fetch, empty-catalogue, timeout and persistence
// failures are fatal to the whole job; normalization and OCR failures are
// recorded per page and the job continues.
const (
	KindValidation        FailureKind = "validation"
	KindFetch             FailureKind = "fetch_failure"
	KindEmptyCatalogue    FailureKind = "empty_catalogue"
	KindPageNormalization FailureKind = "page_normalization"
	KindOCR               FailureKind = "ocr_failure"
	KindTimeout           FailureKind = "timeout"
	KindPersistence       FailureKind = "persistence"
)

// Failure is a classified pipeline error. Page is 0 for catalogue-wide
// failures and the 1-based page index for page-level ones.
type Failure struct {
	Kind FailureKind
	Page int
	Err  error
}

// NewFailure returns a catalogue-wide Failure.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// NewPageFailure returns a Failure scoped to one page.
func NewPageFailure(kind FailureKind, page int, err error) *Failure {
	return &Failure{Kind: kind, Page: page, Err: err}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Page > 0 {
		return fmt.Sprintf("%s (page %d): %v", f.Kind, f.Page, f.Err)
	}
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Unwrap returns the wrapped cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Fatal reports whether the failure aborts the whole job.
func (f *Failure) Fatal() bool {
	switch f.Kind {
	case KindPageNormalization, KindOCR:
		return false
	default:
		return true
	}
}

// KindOf returns the FailureKind of err, or empty string if err is not a Failure.
func KindOf(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return ""
}
