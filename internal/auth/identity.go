package auth

import (
	"context"
)

// Role is the caller's platform role carried in the JWT.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Identity is the authenticated caller: who they are, what they may do and
// which courses they belong to.
type Identity struct {
	UserID  string
	Role    Role
	Courses []string
}

// EnrolledIn reports whether the identity belongs to the given course.
// Teachers and admins are treated as enrolled everywhere.
func (id Identity) EnrolledIn(courseID string) bool {
	if id.Role == RoleAdmin || id.Role == RoleTeacher {
		return true
	}
	for _, c := range id.Courses {
		if c == courseID {
			return true
		}
	}
	return false
}

// CanManage reports whether the identity may reindex or delete the document
// owned by ownerID.
func (id Identity) CanManage(ownerID string) bool {
	return id.Role == RoleAdmin || id.Role == RoleTeacher || id.UserID == ownerID
}

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity stores the caller identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller identity, or false when the request
// was not authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
