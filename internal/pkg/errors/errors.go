package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
	ErrExtraction   = errors.New("archive extraction failed")
	ErrNoImages     = errors.New("archive contains no images")
	ErrMetadataLoad = errors.New("metadata file unparsable")
	ErrRecognition  = errors.New("invalid recognition result")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
