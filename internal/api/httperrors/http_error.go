package httperrors

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

// HTTPError is the JSON body of every failed API call.
type HTTPError struct {
	Code  int    `json:"status"`
	Type  string `json:"type"`
	Title string `json:"title"`
	// Data carries node supplied diagnostics, if any.
	Data     string `json:"data,omitempty"`
	Internal error  `json:"-"`
}

func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{Code: code, Type: errorType, Title: title}
}

func NewFromEcho(e *echo.HTTPError) *HTTPError {
	return &HTTPError{
		Code:     e.Code,
		Type:     TypeGeneric,
		Title:    fmt.Sprintf("%v", e.Message),
		Internal: e.Internal,
	}
}

func (e *HTTPError) Error() string {
	if e.Internal == nil {
		return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
	}

	return fmt.Sprintf("HTTPError %d (%s): %s - %v", e.Code, e.Type, e.Title, e.Internal)
}

// StatusOf maps a broker error code to its HTTP status.
func StatusOf(code errs.Code) int {
	switch code {
	case errs.CodeInvalidPayload, errs.CodeUnhandledTokenType, errs.CodeDerivationLimitReached:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeUnauthorized:
		return http.StatusUnauthorized
	case errs.CodeAlreadyResolved, errs.CodeSessionClosed:
		return http.StatusConflict
	case errs.CodeNoProviderForNetwork, errs.CodeFeeUnavailable:
		return http.StatusServiceUnavailable
	case errs.CodeBroadcastFailed:
		return http.StatusBadGateway
	case errs.CodeRejected, errs.CodeExpired, errs.CodeUserRejected:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// FromDomain converts a broker error. Unclassified errors become a generic 500.
func FromDomain(err error) *HTTPError {
	var e *errs.Error
	if errors.As(err, &e) {
		return &HTTPError{Code: StatusOf(e.Code), Type: string(e.Code), Title: e.Message, Data: e.Data, Internal: err}
	}

	return &HTTPError{
		Code:     http.StatusInternalServerError,
		Type:     TypeGeneric,
		Title:    http.StatusText(http.StatusInternalServerError),
		Internal: err,
	}
}

// HTTPErrorHandler renders err as an HTTPError body.
func HTTPErrorHandler(err error, c echo.Context) {
	var (
		httpErr *HTTPError
		echoErr *echo.HTTPError
	)

	switch {
	case errors.As(err, &httpErr):
	case errors.As(err, &echoErr):
		httpErr = NewFromEcho(echoErr)
	default:
		httpErr = FromDomain(err)
	}

	log := util.LogFromContext(c.Request().Context())
	if httpErr.Code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", httpErr.Code).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", httpErr.Code).Msg("Request failed")
	}

	if c.Response().Committed {
		return
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(httpErr.Code)
	} else {
		err = c.JSON(httpErr.Code, httpErr)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send error response")
	}
}
