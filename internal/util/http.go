package util

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ErrMalformedBody is returned by BindBody when the request body is not valid JSON for v.
var ErrMalformedBody = errors.New("malformed request body")

// BindBody decodes the JSON request body into v. An empty body leaves v untouched.
func BindBody(c echo.Context, v any) error {
	req := c.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(ErrMalformedBody, err.Error())
	}

	return nil
}

// Return writes v as JSON, or no content for HEAD requests.
func Return(c echo.Context, code int, v any) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(code)
	}

	return c.JSON(code, v)
}
