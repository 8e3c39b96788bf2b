package sidecar

import "errors"

var (
	// ErrSpawnUnavailable wraps every reason the sidecar could not be launched.
	ErrSpawnUnavailable = errors.New("sidecar not available")
	// ErrSidecarNotFound means no executable matched the bundling convention.
	ErrSidecarNotFound = errors.New("sidecar executable not found")
)
