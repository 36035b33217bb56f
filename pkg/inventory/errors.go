package inventory

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a resource service failure
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
	KindTransient Kind = "transient"
)

// Sentinels for errors.Is matching against *Error
var (
	ErrNotFound  = errors.New("resource not found")
	ErrConflict  = errors.New("resource conflict or unavailable")
	ErrTransient = errors.New("resource service unreachable")
)

// Error is returned by every ResourceClient operation that fails
type Error struct {
	Kind       Kind
	Resource   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s failed (%s)", e.Resource, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindConflict
	}
}
