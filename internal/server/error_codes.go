package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeInvalidJSON      = 1001
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidMultipart = 1004
	ErrCodeUnknownSlot      = 1005
	ErrCodeInvalidAccount   = 1006

	// Domain state (2xxx)
	ErrCodeSlotNotFound   = 2001
	ErrCodeObjectNotFound = 2002
	ErrCodeIngestNotFound = 2003
	ErrCodeUsernameTaken  = 2101

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeBlobStore      = 4003
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeSlotNotFound
	case 409:
		return ErrCodeUsernameTaken
	case 413:
		return ErrCodeRequestTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	case 502, 503:
		return ErrCodeBlobStore
	default:
		return 0
	}
}
