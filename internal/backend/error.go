package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrUnknownProvider   = errors.New("unknown backend provider")
	ErrAlreadyRegistered = errors.New("backend provider is already registered")
	ErrAudioNotFound     = errors.New("audio file not found")
	ErrEngineFailed      = errors.New("engine failed")
)
