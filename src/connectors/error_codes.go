package connectors

import (
	"errors"
	"fmt"
	"net/http"
)

// BinanceErrorCodes maps API error codes to their symbolic names.
var BinanceErrorCodes = map[int]string{
	-1000: "UNKNOWN",
	-1001: "DISCONNECTED",
	-1002: "UNAUTHORIZED",
	-1003: "TOO_MANY_REQUESTS",
	-1006: "UNEXPECTED_RESP",
	-1007: "TIMEOUT",
	-1013: "INVALID_MESSAGE",
	-1015: "TOO_MANY_ORDERS",
	-1021: "INVALID_TIMESTAMP",
	-1022: "INVALID_SIGNATURE",
	-1100: "ILLEGAL_CHARS",
	-1111: "BAD_PRECISION",
	-1121: "BAD_SYMBOL",
	-2010: "NEW_ORDER_REJECTED",
	-2011: "CANCEL_REJECTED",
	-2013: "NO_SUCH_ORDER",
	-2014: "BAD_API_KEY_FMT",
	-2015: "REJECTED_API_KEY",
	-2019: "MARGIN_NOT_SUFFICIENT",
}

// GetErrorMsg returns the symbolic name for an API error code, or a generic
// label including the code when unknown.
func GetErrorMsg(code int) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_EXCHANGE_ERROR_%d", code)
}

// APIError is a typed exchange failure. Retryable() classifies it for the
// retry wrapper: transient transport and rate-limit trouble retries,
// validation and authentication failures never do.
type APIError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange error %d (%s): %s", e.Code, GetErrorMsg(e.Code), e.Msg)
	}
	return fmt.Sprintf("exchange http %d: %s", e.HTTPStatus, e.Msg)
}

// Retryable reports whether the call may succeed on a later attempt.
func (e *APIError) Retryable() bool {
	switch e.Code {
	case -1001, -1003, -1006, -1007, -1015:
		return true
	case -1002, -1022, -2014, -2015, -1013, -1100, -1111, -1121, -2010, -2011:
		return false
	}

	switch e.HTTPStatus {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.HTTPStatus >= 500
}

// IsNoSuchOrder reports the "order does not exist" rejection, which the fill
// poller maps to a NotFound outcome rather than an error.
func IsNoSuchOrder(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == -2013
}

// TransportError wraps network-level failures (DNS, connection reset,
// timeout before any response). Always retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Retryable() bool { return true }
