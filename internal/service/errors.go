package service

import (
	"errors"
	"net/http"

	"github.com/traysentinel/custodyledger/internal/authz"
	"github.com/traysentinel/custodyledger/internal/cipher"
	"github.com/traysentinel/custodyledger/internal/evidence"
	"github.com/traysentinel/custodyledger/internal/ledger"
)

// ErrAuthRequired is returned when a verb is called with a zero Principal.
var ErrAuthRequired = errors.New("service: principal required")

// ErrAuthUnknown is returned when a Principal carries a role outside the
// closed set authz.KnownRole recognizes.
var ErrAuthUnknown = errors.New("service: unrecognized role")

// Code maps err to the HTTP-ish status code a boundary layer would use
// (spec §6/§7); it is a single switch so that layer, not built here,
// has one place to look up the mapping.
func Code(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrAuthUnknown):
		return http.StatusUnauthorized
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, evidence.ErrNotFound), errors.Is(err, ledger.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateEndorsement):
		return http.StatusConflict
	case errors.Is(err, cipher.ErrCryptoFailure):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
