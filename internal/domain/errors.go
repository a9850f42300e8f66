package domain

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrAlreadyProcessing  = errors.New("document is already being processed")
	ErrDocumentNotFailed  = errors.New("document is not in a failed state")
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrSuggestionDecided  = errors.New("suggestion has already been decided")
	ErrPatternNotFound    = errors.New("pattern not found")
	ErrPatternConflict    = errors.New("concurrent pattern mutation detected")
	ErrMalformedResponse  = errors.New("no JSON object could be isolated from the model response")
	ErrPromptNotFound     = errors.New("no prompt template registered for purpose")
	ErrEmptyDocument      = errors.New("document text is empty")

	ErrPromptMissingPlaceholder = errors.New("prompt text is missing the document placeholder")
)
