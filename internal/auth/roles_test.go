package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github/chapool/wallet-broker/internal/auth"
)

func TestRoleFor(t *testing.T) {
	assert.Equal(t, auth.RoleApprover, auth.RoleFor("s3cret", "s3cret"))
	assert.Equal(t, auth.RolePage, auth.RoleFor("s3cret", "s3cre"))
	assert.Equal(t, auth.RolePage, auth.RoleFor("s3cret", ""))
	assert.Equal(t, auth.RolePage, auth.RoleFor("", ""))
	assert.True(t, auth.RoleApprover.IsApprover())
	assert.Equal(t, "page", auth.RolePage.String())
}
