package watcher

import "errors"

var (
	ErrRootRequired       = errors.New("watch root is required")
	ErrRegistryRequired   = errors.New("parser registry is required")
	ErrSubmitterRequired  = errors.New("submitter is required")
	ErrRepositoryRequired = errors.New("document and watch repositories are required")
)
