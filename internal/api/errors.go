package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"scribe/internal/services"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("scribe API unavailable")

var kindStatus = map[services.ErrorKind]int{
	services.KindJobNotFound:       http.StatusNotFound,
	services.KindInputNotFound:     http.StatusNotFound,
	services.KindUnsupportedFormat: http.StatusBadRequest,
	services.KindValidation:        http.StatusBadRequest,
	services.KindInvalidTransition: http.StatusConflict,
	services.KindDuplicateJobID:    http.StatusConflict,
	services.KindStoreFull:         http.StatusServiceUnavailable,
	services.KindCancelled:         http.StatusServiceUnavailable,
	services.KindTimeout:           http.StatusGatewayTimeout,
	services.KindExternalTool:      http.StatusBadGateway,
}

var kindSentinel = map[services.ErrorKind]error{
	services.KindInputNotFound:     services.ErrInputNotFound,
	services.KindUnsupportedFormat: services.ErrUnsupportedFormat,
	services.KindExternalTool:      services.ErrExternalTool,
	services.KindTimeout:           services.ErrTimeout,
	services.KindInvalidTransition: services.ErrInvalidTransition,
	services.KindJobNotFound:       services.ErrJobNotFound,
	services.KindDuplicateJobID:    services.ErrDuplicateJobID,
	services.KindValidation:        services.ErrValidation,
	services.KindConfiguration:     services.ErrConfiguration,
	services.KindStoreFull:         services.ErrStoreFull,
	services.KindCancelled:         services.ErrCancelled,
	services.KindIO:                services.ErrIO,
}

// StatusForKind maps an error kind to its HTTP status code.
func StatusForKind(kind services.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a non-2xx response decoded by the Client. It unwraps to the
// services sentinel of its kind so callers can use errors.Is.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d (%s)", e.StatusCode, e.Kind)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return kindSentinel[services.ErrorKind(e.Kind)]
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
