package service

import "errors"

// Error definitions for the service package.
var (
	ErrModelNotLoaded  = errors.New("whisper model not loaded")
	ErrNoFile          = errors.New("no audio file provided")
	ErrNoFileSelected  = errors.New("no file selected")
	ErrInvalidArgument = errors.New("invalid argument")
)
