package discid

import (
	"fmt"
)

// ErrorKind classifies a validation failure detected before any edit is created.
type ErrorKind string

const (
	KindInvalidTocFormat    ErrorKind = "invalid_toc_format"
	KindInvalidParameter    ErrorKind = "invalid_parameter"
	KindMissingParameter    ErrorKind = "missing_parameter"
	KindMediumNotFound      ErrorKind = "medium_not_found"
	KindCDTOCNotFound       ErrorKind = "cdtoc_not_found"
	KindIneligibleMedium    ErrorKind = "ineligible_medium"
	KindDuplicateAttachment ErrorKind = "duplicate_attachment"
	KindTrackCountMismatch  ErrorKind = "track_count_mismatch"
	KindMissingEditNote     ErrorKind = "missing_edit_note"
)

// ValidationError describes why a request was rejected. Errors compare equal under errors.Is when their kinds match.
type ValidationError struct {
	Kind  ErrorKind
	Field string
	Value string
}

var (
	ErrInvalidTocFormat    = &ValidationError{Kind: KindInvalidTocFormat}
	ErrInvalidParameter    = &ValidationError{Kind: KindInvalidParameter}
	ErrMissingParameter    = &ValidationError{Kind: KindMissingParameter}
	ErrMediumNotFound      = &ValidationError{Kind: KindMediumNotFound}
	ErrCDTOCNotFound       = &ValidationError{Kind: KindCDTOCNotFound}
	ErrIneligibleMedium    = &ValidationError{Kind: KindIneligibleMedium}
	ErrDuplicateAttachment = &ValidationError{Kind: KindDuplicateAttachment}
	ErrTrackCountMismatch  = &ValidationError{Kind: KindTrackCountMismatch}
	ErrMissingEditNote     = &ValidationError{Kind: KindMissingEditNote}
)

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("discid: %s: %s=%q", e.Kind, e.Field, e.Value)
	case e.Field != "":
		return fmt.Sprintf("discid: %s: %s", e.Kind, e.Field)
	default:
		return fmt.Sprintf("discid: %s", e.Kind)
	}
}

// Is matches any ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	other, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func invalid(kind ErrorKind, field, value string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Value: value}
}
