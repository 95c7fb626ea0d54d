package graph

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

var (
	// ErrVertexNotFound the vertex does not exist
	ErrVertexNotFound = errors.New("vertex not found")

	// ErrEdgeNotFound the edge does not exist
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrMetadataNotFound the metadata does not exist
	ErrMetadataNotFound = errors.New("metadata not found")
)

// Category the coarse error category of a transaction error
type Category uint8

const (
	// CategoryUnexpected internal failure of the datastore
	CategoryUnexpected Category = iota

	// CategoryNotFound the requested item does not exist
	CategoryNotFound

	// CategoryOutOfRange a value is out of its allowed range
	CategoryOutOfRange
)

func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "not found"
	case CategoryOutOfRange:
		return "out of range"
	}
	return "unexpected"
}

// OutOfRangeError a value is out of range
type OutOfRangeError struct {
	Name string
}

func (err *OutOfRangeError) Error() string {
	return fmt.Sprintf("value out of range: %s", err.Name)
}

// UnexpectedError wraps an internal datastore failure with its stack
type UnexpectedError struct {
	Err *goerrors.Error
}

// Unexpected wrap an internal error, nil stays nil
func Unexpected(err error) error {
	if err == nil {
		return nil
	}
	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		return err
	}
	return &UnexpectedError{Err: goerrors.Wrap(err, 1)}
}

func (err *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %s", err.Err.Error())
}

// Unwrap the original error
func (err *UnexpectedError) Unwrap() error {
	return err.Err.Err
}

// Stack the stack trace captured when the error was wrapped
func (err *UnexpectedError) Stack() string {
	return err.Err.ErrorStack()
}

// CategoryOf classify a transaction error
func CategoryOf(err error) Category {
	if errors.Is(err, ErrVertexNotFound) || errors.Is(err, ErrEdgeNotFound) || errors.Is(err, ErrMetadataNotFound) {
		return CategoryNotFound
	}

	var outOfRange *OutOfRangeError
	if errors.As(err, &outOfRange) {
		return CategoryOutOfRange
	}

	return CategoryUnexpected
}
