package api

import (
	"errors"
	"net/http"

	service "github.com/tastemachine/poa-engine/internal/app"
	"github.com/tastemachine/poa-engine/internal/domain/selector"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps service-layer errors onto HTTP status codes and stable
// machine-readable error codes.
func statusFor(err error) (status int, code string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, selector.ErrUnknownType),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnknownNFT):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, selector.ErrPoolExhausted):
		return http.StatusConflict, "pool_exhausted"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
