package relayer

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a relayer failure for API clients
type Kind string

const (
	KindInvalidParameters      Kind = "InvalidParameters"
	KindStateConflict          Kind = "StateConflict"
	KindNotAuthorized          Kind = "NotAuthorized"
	KindExternalServiceFailure Kind = "ExternalServiceFailure"
	KindVerificationTimeout    Kind = "VerificationTimeout"
)

// Codes refine a kind
const (
	CodeUnsupportedChain     = "UnsupportedChain"
	CodeInvalidIntentID      = "InvalidIntentId"
	CodeInvalidAddress       = "InvalidAddress"
	CodeMissingProof         = "MissingProof"
	CodeIntentNotFound       = "IntentNotFound"
	CodeNotSolved            = "NotSolved"
	CodeAlreadyCompleted     = "AlreadyCompleted"
	CodeNotDeposited         = "NotDeposited"
	CodeRelayerNotAuthorized = "RelayerNotAuthorized"
	CodeWrongSolver          = "WrongSolver"
	CodeProofRejected        = "ProofRejected"
	CodeProofTimeout         = "ProofTimeout"
	CodeProofProvider        = "ProofProviderFailure"
	CodeRPC                  = "RPCFailure"
	CodeSettlementReverted   = "SettlementReverted"
	CodeInvalidManifest      = "InvalidManifest"
	CodeInvalidJobID         = "InvalidJobId"
)

// Error is returned by every Service operation that fails
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Err       error
	AttemptID string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind onto a response code
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidParameters:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindExternalServiceFailure:
		return http.StatusBadGateway
	case KindVerificationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError extracts a relayer error from err
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err is a relayer error with the given code
func IsCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
