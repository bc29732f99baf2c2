package auth

import (
	"crypto/subtle"
)

// Role is what a caller may do on the broker.
type Role string

const (
	// RoleApprover may resolve requests and call privileged operations.
	RoleApprover Role = "approver"
	// RolePage may only create requests.
	RolePage Role = "page"
)

func (r Role) IsApprover() bool {
	return r == RoleApprover
}

func (r Role) String() string {
	return string(r)
}

// RoleFor returns RoleApprover when presented matches the configured approver token. An empty
// configured token authorises nobody.
func RoleFor(configured string, presented string) Role {
	if configured == "" || presented == "" {
		return RolePage
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) != 1 {
		return RolePage
	}

	return RoleApprover
}
