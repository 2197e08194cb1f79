package unistore

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error returned by an Operator or Accessor.
type Kind uint8

const (
	// KindUnexpected is an error the backend could not classify. It may be
	// temporary or persistent, at the backend's discretion.
	KindUnexpected Kind = iota
	// KindUnsupported means the operation is not advertised by the backend's
	// Capability. Reported by the Operator before any backend call is made.
	KindUnsupported
	// KindConfigInvalid means the backend configuration is incomplete or
	// malformed.
	KindConfigInvalid
	// KindNotFound means the path does not exist.
	KindNotFound
	// KindAlreadyExists means the path already exists.
	KindAlreadyExists
	// KindIsADirectory means a file operation was given a directory path.
	KindIsADirectory
	// KindNotADirectory means a directory operation was given a file path.
	KindNotADirectory
	// KindIsSameFile means source and destination refer to the same path.
	KindIsSameFile
	// KindPermissionDenied means the backend rejected the credentials or the
	// operation on this path.
	KindPermissionDenied
	// KindRateLimited means the backend asked us to back off. Always temporary.
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "Unsupported"
	case KindConfigInvalid:
		return "ConfigInvalid"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindIsADirectory:
		return "IsADirectory"
	case KindNotADirectory:
		return "NotADirectory"
	case KindIsSameFile:
		return "IsSameFile"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindRateLimited:
		return "RateLimited"
	default:
		return "Unexpected"
	}
}

// Sentinel errors for use with errors.Is. Each matches any *Error carrying
// the same Kind, regardless of operation or path:
//
//	if errors.Is(err, unistore.ErrNotFound) { ... }
var (
	ErrUnexpected       = &Error{Kind: KindUnexpected}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
	ErrConfigInvalid    = &Error{Kind: KindConfigInvalid}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrIsADirectory     = &Error{Kind: KindIsADirectory}
	ErrNotADirectory    = &Error{Kind: KindNotADirectory}
	ErrIsSameFile       = &Error{Kind: KindIsSameFile}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
)

// Error is the structured error produced at the Accessor boundary. It flows
// up through layers unmodified, except that the retry layer relabels a
// temporary error persistent once retries are exhausted.
//
// An Error is never mutated after it has been returned; layers that change
// classification work on a copy.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Op is the operation that failed ("stat", "write", ...).
	Op string
	// Path is the target path, if any.
	Path string
	// Message carries backend-specific detail.
	Message string
	// Temporary marks the error as safe to retry. Retry eligibility is
	// decided by this flag alone, never by Kind.
	Temporary bool
	// Err is the wrapped cause, if any.
	Err error
}

// NewError creates an Error for the given operation and path.
func NewError(kind Kind, op, path, message string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Temporary {
		b.WriteString(" (temporary)")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches bare *Error targets by Kind, so the Err* sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == ""
}

// AsTemporary returns e flagged temporary.
func (e *Error) AsTemporary() *Error {
	e.Temporary = true
	return e
}

// WithCause returns e with err attached as the wrapped cause.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// asPersistent returns a copy of e with the temporary flag cleared. Used by
// the retry layer after exhausting retries; exported via layers, not here.
func (e *Error) asPersistent() *Error {
	c := *e
	c.Temporary = false
	return &c
}

// KindOf extracts the Kind from err. Errors that are not *Error report
// KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsTemporary reports whether err is flagged safe to retry.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary
	}
	return false
}

// MarkPersistent returns err with its temporary flag cleared. Errors that
// are not *Error are returned unchanged.
func MarkPersistent(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.asPersistent()
	}
	return err
}
