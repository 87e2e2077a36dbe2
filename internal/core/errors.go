package core

import "errors"

var (
	// ErrNotFound is returned when a referenced document or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a tenant touches another tenant's document.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument is returned for malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedFormat is returned when the declared file format is not docx.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyOrUnreadable is returned when a document yields too little text or cannot be opened.
	ErrEmptyOrUnreadable = errors.New("document is empty or unreadable")

	// ErrMalformedDocument is returned when the container scan exceeds its sanity limits.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrFileTooLarge is returned when the source exceeds the configured byte cap.
	ErrFileTooLarge = errors.New("file too large")

	// ErrFetchFailed is returned for network or HTTP errors while retrieving source bytes.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrEmbeddingService is returned when the embedding service fails for good.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrRateLimited marks an embedding call rejected by upstream rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrStorage wraps document and chunk persistence failures.
	ErrStorage = errors.New("storage error")
)

// IsRetryable reports whether a failed ingestion attempt is worth redelivering.
// Format and content errors never are; a different source file is needed.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrEmptyOrUnreadable),
		errors.Is(err, ErrMalformedDocument),
		errors.Is(err, ErrFileTooLarge):
		return false
	case errors.Is(err, ErrFetchFailed), errors.Is(err, ErrStorage):
		return true
	case errors.Is(err, ErrEmbeddingService):
		return errors.Is(err, ErrRateLimited)
	}
	return false
}
