// Package apperr classifies failures of the ingestion and trust pipeline.
//
// Every error that crosses a component boundary carries an ErrorCode from
// github.com/jmgilman/go/errors. Kind groups those codes into the classes a
// caller must handle differently: validation problems are the client's fault,
// security rejections are forbidden and logged as security events, integrity
// failures mean an artifact was refused, and persistence failures are fatal to
// the request.
package apperr

import (
	perrors "github.com/jmgilman/go/errors"
)

// Error codes raised by the core. Codes shared with the platform package keep
// their platform values.
const (
	CodeInvalidInput       = perrors.CodeInvalidInput
	CodeInvalidFilename    perrors.ErrorCode = "INVALID_FILENAME"
	CodeExtensionRejected  perrors.ErrorCode = "EXTENSION_NOT_ALLOWED"
	CodeUploadTooLarge     perrors.ErrorCode = "UPLOAD_TOO_LARGE"
	CodeCSRFRejected       perrors.ErrorCode = "CSRF_REJECTED"
	CodeForbidden          = perrors.CodeForbidden
	CodePathRejected       perrors.ErrorCode = "PATH_REJECTED"
	CodeMalwareDetected    perrors.ErrorCode = "MALWARE_DETECTED"
	CodeScannerUnavailable perrors.ErrorCode = "SCANNER_UNAVAILABLE"
	CodeDatabase           = perrors.CodeDatabase
	CodeNotFound           = perrors.CodeNotFound
	CodeUnauthorized       = perrors.CodeUnauthorized
	CodeInternal           = perrors.CodeInternal
)

// Kind is the taxonomy class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindSecurity
	KindIntegrity
	KindPersistence
	KindNotFound
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSecurity:
		return "security"
	case KindIntegrity:
		return "integrity"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

var kinds = map[perrors.ErrorCode]Kind{
	CodeInvalidInput:       KindValidation,
	CodeInvalidFilename:    KindValidation,
	CodeExtensionRejected:  KindValidation,
	CodeUploadTooLarge:     KindValidation,
	CodeCSRFRejected:       KindSecurity,
	CodeForbidden:          KindSecurity,
	CodePathRejected:       KindSecurity,
	CodeMalwareDetected:    KindIntegrity,
	CodeScannerUnavailable: KindIntegrity,
	CodeDatabase:           KindPersistence,
	CodeNotFound:           KindNotFound,
	CodeUnauthorized:       KindUnauthenticated,
}

// KindOf returns the taxonomy class of err. Errors without a code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if k, ok := kinds[perrors.GetCode(err)]; ok {
		return k
	}
	return KindInternal
}

// Code returns the outermost error code in err's chain.
func Code(err error) perrors.ErrorCode {
	return perrors.GetCode(err)
}

// IsCoded reports whether err already carries an error code.
func IsCoded(err error) bool {
	return err != nil && perrors.GetCode(err) != perrors.CodeUnknown
}

// Message returns the client-safe message of a coded error, or "" for
// uncoded errors whose text must not be exposed.
func Message(err error) string {
	var pe perrors.PlatformError
	if perrors.As(err, &pe) {
		return pe.Message()
	}
	return ""
}

func Validation(code perrors.ErrorCode, msg string) error {
	return perrors.New(code, msg)
}

func Validationf(code perrors.ErrorCode, format string, args ...any) error {
	return perrors.Newf(code, format, args...)
}

func Security(code perrors.ErrorCode, msg string) error {
	return perrors.New(code, msg)
}

// Integrity wraps the cause of a refused artifact. cause may be nil.
func Integrity(code perrors.ErrorCode, msg string, cause error) error {
	if cause == nil {
		return perrors.New(code, msg)
	}
	return perrors.Wrap(cause, code, msg)
}

// Persistence marks a store failure. It returns nil for a nil cause.
func Persistence(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return perrors.Wrap(cause, CodeDatabase, msg)
}

func NotFound(msg string) error {
	return perrors.New(CodeNotFound, msg)
}

func Unauthenticated(msg string) error {
	return perrors.New(CodeUnauthorized, msg)
}

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(cause error, msg string) error {
	if cause == nil {
		return perrors.New(CodeInternal, msg)
	}
	return perrors.Wrap(cause, CodeInternal, msg)
}
