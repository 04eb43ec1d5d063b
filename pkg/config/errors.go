package config

import "errors"

var (
	ErrParsingConfig     = errors.New("failed to parse environment variables into config")
	ErrInvalidConfigType = errors.New("config type must be a struct")
	ErrConfigNotLoaded   = errors.New("configuration has not been loaded")
	ErrNilPointer        = errors.New("nil pointer provided to config loader")
)
