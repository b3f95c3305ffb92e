// errors.go
package elasticcache

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input parameters")
	ErrNotFound         = errors.New("document not found")
	ErrStoreUnavailable = errors.New("document store unavailable")
	ErrIndexExists      = errors.New("index already exists")
	ErrInitialization   = errors.New("cache backend initialization failed")
	ErrConfiguration    = errors.New("invalid cache backend configuration")
)
