package linkpreview

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, services, and handlers.
var (
	// ErrValidation marks a record that failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrURLRequired is returned when a Link has a blank URL.
	ErrURLRequired = fmt.Errorf("%w: url can't be blank", ErrValidation)
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidURL is returned by downloaders when a URL can never be fetched.
	// Jobs that hit it are discarded instead of retried.
	ErrInvalidURL = errors.New("invalid url")
)
