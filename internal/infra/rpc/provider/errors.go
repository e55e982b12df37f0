package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Category classifies a transport failure.
type Category int

const (
	CategoryTransient Category = iota
	CategoryNotFoundOrInaccessible
	CategoryOtherFatal
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryNotFoundOrInaccessible:
		return "not_found_or_inaccessible"
	case CategoryOtherFatal:
		return "other_fatal"
	default:
		return "unknown"
	}
}

// TransportError is returned by providers for failed calls.
type TransportError struct {
	Category   Category
	StatusCode int // 0 for network errors
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Category, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CategorizeStatus maps an HTTP status code to a failure category.
func CategorizeStatus(code int) Category {
	switch {
	case code == http.StatusNotFound || code == http.StatusForbidden:
		return CategoryNotFoundOrInaccessible
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return CategoryTransient
	case code >= 500:
		return CategoryTransient
	default:
		return CategoryOtherFatal
	}
}

// IsTransient reports whether err is a transient TransportError.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Category == CategoryTransient
}

// IsInaccessible reports whether err is a not-found/forbidden TransportError.
func IsInaccessible(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Category == CategoryNotFoundOrInaccessible
}
