package identity

import "errors"

// ErrUserNotFound is returned when the provider has no record for the id.
var ErrUserNotFound = errors.New("identity user not found")
