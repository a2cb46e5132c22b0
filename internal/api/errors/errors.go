// Package errors translates sentinel errors from the key packages into
// the HTTP status codes and stable error codes the API promises.
package errors

import (
	"errors"
	"net/http"

	"github.com/keyfob-io/keyfob/internal/api/dto"
	"github.com/keyfob-io/keyfob/pkg/keyring"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// Stable machine-readable codes carried in every error body. Clients
// branch on these, not on messages.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeMalformedKey         = "MALFORMED_KEY"
	CodeUnsupportedAlgorithm = "UNSUPPORTED_ALGORITHM"
	CodeRoleMismatch         = "ROLE_MISMATCH"
	CodeNotPrivateKey        = "NOT_PRIVATE_KEY"
	CodeNotPublicKey         = "NOT_PUBLIC_KEY"
	CodeKeyNotExportable     = "KEY_NOT_EXPORTABLE"
	CodePassphraseRequired   = "PASSPHRASE_REQUIRED"
	CodeHandleReleased       = "HANDLE_RELEASED"
	CodeVerificationError    = "VERIFICATION_ERROR"
	CodeSigningFailed        = "SIGNING_FAILED"
	CodeNotInitialized       = "NOT_INITIALIZED"
	CodeInternal             = "INTERNAL_ERROR"
)

// MapError resolves an operation error to its HTTP status and wire
// body. Unrecognized errors fall through to 500 with a generic message
// so internals do not leak.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case errors.Is(err, sshkey.ErrMalformedKey):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeMalformedKey,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrUnsupportedAlgorithm):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeUnsupportedAlgorithm,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrRoleMismatch):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeRoleMismatch,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrPassphraseRequired):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodePassphraseRequired,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrNotPrivateKey):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeNotPrivateKey,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrNotPublicKey):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeNotPublicKey,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrKeyNotExportable):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeKeyNotExportable,
			Message: err.Error(),
		}
	case errors.Is(err, keyring.ErrHandleReleased):
		return http.StatusGone, &dto.APIError{
			Code:    CodeHandleReleased,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrVerification):
		return http.StatusUnprocessableEntity, &dto.APIError{
			Code:    CodeVerificationError,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrSigningFailed):
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeSigningFailed,
			Message: err.Error(),
		}
	case errors.Is(err, sshkey.ErrInitialization):
		return http.StatusServiceUnavailable, &dto.APIError{
			Code:    CodeNotInitialized,
			Message: err.Error(),
		}
	}

	// Unmapped KeyError: keep the operation context, hide nothing else.
	var kerr *sshkey.KeyError
	if errors.As(err, &kerr) {
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeInternal,
			Message: kerr.Error(),
			Details: map[string]string{
				"operation": kerr.Op,
				"algorithm": string(kerr.Algorithm),
			},
		}
	}

	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "internal error",
	}
}

// NewBadRequest shapes a request-decoding failure as an API error body.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}
