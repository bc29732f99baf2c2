package httperrors

import (
	"net/http"
)

const TypeGeneric = "generic"

var (
	ErrBadRequestMalformedBody = NewHTTPError(http.StatusBadRequest, "malformedBody", "The request body could not be decoded.")
	ErrUnauthorizedApprover    = NewHTTPError(http.StatusUnauthorized, "approverTokenInvalid", "A valid approver token is required.")
)
