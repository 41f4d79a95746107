package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeIdempotency Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeDependency  Code = "DEPENDENCY_ERROR"
	CodeTooLarge    Code = "PAYLOAD_TOO_LARGE"

	// Loan ledger outcomes.
	CodeItemUnavailable      Code = "ITEM_UNAVAILABLE"
	CodeAlreadyReturned      Code = "ALREADY_RETURNED"
	CodeInvalidRange         Code = "INVALID_RANGE"
	CodeConsistencyViolation Code = "CONSISTENCY_VIOLATION"
)

// Metadata is how a code surfaces over HTTP. Codes without ExposeMessage
// answer with PublicMessage so internal wording never reaches the caller.
type Metadata struct {
	HTTPStatus    int
	PublicMessage string
	ExposeMessage bool
	ExposeDetails bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:  {http.StatusBadRequest, "validation failed", true, true},
	CodeNotFound:    {http.StatusNotFound, "resource not found", true, false},
	CodeConflict:    {http.StatusConflict, "conflict detected", true, false},
	CodeIdempotency: {http.StatusConflict, "idempotency key reused", true, true},
	CodeInternal:    {http.StatusInternalServerError, "internal server error", false, false},
	CodeDependency:  {http.StatusServiceUnavailable, "dependency unavailable", false, true},
	CodeTooLarge:    {http.StatusRequestEntityTooLarge, "request body too large", true, true},

	CodeItemUnavailable:      {http.StatusConflict, "item is not available for loan", true, true},
	CodeAlreadyReturned:      {http.StatusConflict, "loan already returned", true, true},
	CodeInvalidRange:         {http.StatusBadRequest, "invalid date range", true, true},
	CodeConsistencyViolation: {http.StatusInternalServerError, "loan and item state diverged", false, true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The code picks the HTTP mapping; message and
// details are shown to the caller only as Metadata allows.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code reports CodeInternal for a nil receiver.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
