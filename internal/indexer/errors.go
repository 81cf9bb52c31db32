package indexer

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrEmptyFile         = errors.New("file is empty")
	ErrDuplicateDocument = errors.New("document already uploaded")
	ErrAlreadyProcessing = errors.New("document is already being processed")
	ErrClosed            = errors.New("indexer is closed")
)

// DuplicateError carries the id of the document that already holds the uploaded bytes
type DuplicateError struct {
	DocumentID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: existing document %s", ErrDuplicateDocument, e.DocumentID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateDocument
}
