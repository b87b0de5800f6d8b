package service

import "payflow/internal/permission"

// Caller is the authenticated identity attached to a request by the auth
// middleware. Permissions are resolved fresh per request; they are never
// read back from the token.
type Caller struct {
	UserID      string
	TenantID    string
	Permissions permission.Set
}
