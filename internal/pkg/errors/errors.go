package errors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalid         = errors.New("invalid")
	ErrInternal        = errors.New("internal")
	ErrTooLarge        = errors.New("too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
