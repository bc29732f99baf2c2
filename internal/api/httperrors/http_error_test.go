package httperrors_test

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github/chapool/wallet-broker/internal/api/httperrors"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

func TestStatusOf(t *testing.T) {
	cases := map[errs.Code]int{
		errs.CodeInvalidPayload:       http.StatusBadRequest,
		errs.CodeUnhandledTokenType:   http.StatusBadRequest,
		errs.CodeNotFound:             http.StatusNotFound,
		errs.CodeUnauthorized:         http.StatusUnauthorized,
		errs.CodeAlreadyResolved:      http.StatusConflict,
		errs.CodeNoProviderForNetwork: http.StatusServiceUnavailable,
		errs.CodeBroadcastFailed:      http.StatusBadGateway,
		errs.CodeExpired:              http.StatusGone,
		errs.CodeInternal:             http.StatusInternalServerError,
	}

	for code, status := range cases {
		assert.Equal(t, status, httperrors.StatusOf(code), code)
	}
}

func TestFromDomain(t *testing.T) {
	wrapped := errors.Wrap(errs.New(errs.CodeBroadcastFailed, "nonce too low"), "transfer")
	e := httperrors.FromDomain(wrapped)
	assert.Equal(t, http.StatusBadGateway, e.Code)
	assert.Equal(t, string(errs.CodeBroadcastFailed), e.Type)
	assert.Equal(t, "nonce too low", e.Title)

	e = httperrors.FromDomain(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, e.Code)
	assert.Equal(t, httperrors.TypeGeneric, e.Type)
	assert.NotContains(t, e.Title, "boom")
}
