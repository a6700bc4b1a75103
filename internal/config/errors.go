package config

import "errors"

var (
	// ErrUnknownKey is returned when a key is not part of the preference schema.
	ErrUnknownKey = errors.New("config: unknown key")

	// ErrKindMismatch is returned when a value does not match the kind declared for its key.
	ErrKindMismatch = errors.New("config: value kind mismatch")

	// ErrUnknownPathType is returned when a stored path entry has a type other than file or folder.
	ErrUnknownPathType = errors.New("config: unknown path type")
)
