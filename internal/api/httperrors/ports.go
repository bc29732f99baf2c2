package httperrors

import (
	"net/http"
)

var (
	ErrBadRequestSessionKind = NewHTTPError(http.StatusBadRequest, "sessionKindInvalid", "kind must be one of page, popup or background.")
)
