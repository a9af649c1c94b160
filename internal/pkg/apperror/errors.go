package apperror

import "errors"

// Error kinds shared by the storage engine, the lifecycle service and the HTTP layer.
// Wrap them with fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	ErrNotStaged          = errors.New("media record not staged")
	ErrNotFound           = errors.New("media not found")
	ErrImageDecode        = errors.New("image could not be decoded")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadDescriptor      = errors.New("invalid variant descriptor")
	ErrInvalidInput       = errors.New("invalid request")
	ErrRemoteFetch        = errors.New("remote image could not be fetched")
)

// IsClientError reports whether err was caused by the request rather than by a backend.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotStaged) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrImageDecode) ||
		errors.Is(err, ErrUnsupportedBackend) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrBadDescriptor) ||
		errors.Is(err, ErrInvalidInput)
}
