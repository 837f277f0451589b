package transport

import (
	"encoding/json"
	"net/http"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

// HTTPStatusFromError maps an error type to the corresponding HTTP status
// code. Transport-level errors (body too large, unsupported content type)
// are handled separately by the HTTP adapter.
func HTTPStatusFromError(err *api.Error) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeInvalidState:
		return http.StatusConflict
	case api.ErrorTypeProviderFailure:
		return http.StatusBadGateway
	case api.ErrorTypePersistenceFailure, api.ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom returns the typed error in err's chain, or wraps err as an
// internal error.
func ErrorFrom(op string, err error) *api.Error {
	if apiErr, ok := api.AsError(err); ok {
		return apiErr
	}
	return api.NewInternalError(op, err.Error())
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.Error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an Error response, deriving the HTTP status code
// from the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.Error) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
