package storage

import "errors"

// Common storage errors
var (
	// ErrParticipantNotFound indicates that participant was not found in storage
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrProjectNotFound indicates that project was not found in storage
	ErrProjectNotFound = errors.New("project not found")

	// ErrFileNotFound indicates that project has no file with this name
	ErrFileNotFound = errors.New("file not found")

	// ErrFileAlreadyExists indicates that project already has a file with this name
	ErrFileAlreadyExists = errors.New("file already exists")
)
