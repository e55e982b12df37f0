package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProjectInaccessible is matched by every ProjectInaccessibleError.
	ErrProjectInaccessible = errors.New("project inaccessible")

	// ErrInvalidConfiguration marks usage errors detected before any data is touched.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrConflictingAttributeTypes is matched by every ConflictingAttributeTypesError.
	ErrConflictingAttributeTypes = errors.New("conflicting attribute types")
)

// ProjectInaccessibleError is returned when a project does not exist or the
// caller has no access to it. It is never retried.
type ProjectInaccessibleError struct {
	Project ProjectIdentifier
	Err     error
}

func (e *ProjectInaccessibleError) Error() string {
	if e.Project == "" {
		return "project does not exist or is inaccessible"
	}
	return fmt.Sprintf("project %q does not exist or is inaccessible", e.Project)
}

func (e *ProjectInaccessibleError) Is(target error) bool {
	return target == ErrProjectInaccessible
}

func (e *ProjectInaccessibleError) Unwrap() error {
	return e.Err
}

// ConflictingAttributeTypesError names attributes that appear with more than
// one type when type suffixes are disabled.
type ConflictingAttributeTypesError struct {
	Names []string
}

func (e *ConflictingAttributeTypesError) Error() string {
	return fmt.Sprintf(
		"attributes %s have conflicting types; enable type suffixes in column names to disambiguate",
		strings.Join(e.Names, ", "),
	)
}

func (e *ConflictingAttributeTypesError) Is(target error) bool {
	return target == ErrConflictingAttributeTypes
}

// UnsupportedTypeError is returned for attribute types this client does not decode.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported attribute type %q", e.Type)
}

// UnexpectedResponseError is returned when a response cannot be decoded.
type UnexpectedResponseError struct {
	Status int
	Body   string
	Err    error
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response (status %d): %v", e.Status, e.Err)
}

func (e *UnexpectedResponseError) Unwrap() error {
	return e.Err
}
