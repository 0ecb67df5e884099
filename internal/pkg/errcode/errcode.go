package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrInternal
	ErrInvalidFile
	ErrFileTooLarge
	ErrConvertFailed
	ErrExtractFailed
	ErrSummarizeFailed
)
