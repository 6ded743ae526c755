package relayer

import (
	"errors"
	"net/http"

	errorsmod "cosmossdk.io/errors"
)

const Codespace = "relayer"

var (
	ErrInvalidRequest     = errorsmod.Register(Codespace, 1, "invalid decryption request")
	ErrWindow             = errorsmod.Register(Codespace, 2, "authorization outside its validity window")
	ErrBadSignature       = errorsmod.Register(Codespace, 3, "authorization signature does not match user")
	ErrContractNotCovered = errorsmod.Register(Codespace, 4, "contract not covered by authorization")
	ErrNotAllowed         = errorsmod.Register(Codespace, 5, "handle not allowed for user and contract")
	ErrUnavailable        = errorsmod.Register(Codespace, 6, "relayer unavailable")
)

// httpStatus maps a service error to the status the handler returns.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrWindow), errors.Is(err, ErrContractNotCovered), errors.Is(err, ErrNotAllowed):
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// errorFromBody restores the registered error the server reported, falling
// back to the HTTP status.
func errorFromBody(status int, body errorBody) error {
	if body.Codespace == Codespace && body.Code != 0 {
		return errorsmod.ABCIError(body.Codespace, body.Code, body.Error)
	}
	switch status {
	case http.StatusBadRequest:
		return errorsmod.Wrap(ErrInvalidRequest, body.Error)
	case http.StatusUnauthorized:
		return errorsmod.Wrap(ErrBadSignature, body.Error)
	case http.StatusForbidden:
		return errorsmod.Wrap(ErrNotAllowed, body.Error)
	default:
		return errorsmod.Wrapf(ErrUnavailable, "status %d: %s", status, body.Error)
	}
}
