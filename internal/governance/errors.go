package governance

import "errors"

// Sentinel errors shared by every store implementation. Stores wrap them
// with the offending id so callers can match with errors.Is and still log
// a useful message.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
