package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyUpload       = errors.New("uploaded file is empty")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrDocumentParse     = errors.New("could not parse document")
	ErrEmptyContent      = errors.New("could not extract any content from document")
	ErrEmbeddingProvider = errors.New("embedding provider failed")
	ErrSynthesis         = errors.New("answer synthesis failed")
	ErrNotFound          = errors.New("not found")
	ErrNoDocuments       = fmt.Errorf("no documents uploaded yet: %w", ErrNotFound)
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrProviderTimeout is returned when an upstream model call exceeds its
	// deadline. It is retryable.
	ErrProviderTimeout = errors.New("provider timed out")
)

// IsRetryable reports whether err is a transient upstream provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderTimeout) || errors.Is(err, ErrEmbeddingProvider)
}
