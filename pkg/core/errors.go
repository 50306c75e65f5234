// pkg/core/errors.go
package core

import "errors"

var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrLocationTimeout     = errors.New("location timeout")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrImageRead           = errors.New("image read failed")
	ErrStoreWrite          = errors.New("store write failed")
	ErrImageDecode         = errors.New("image decode failed")

	ErrMissingImage     = errors.New("image is required")
	ErrMissingLocation  = errors.New("location is required")
	ErrUploadInProgress = errors.New("upload already in progress")
	ErrUnauthenticated  = errors.New("no authenticated identity")
	ErrNotFound         = errors.New("record not found")
)
