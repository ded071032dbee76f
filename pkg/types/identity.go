package types

import (
	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
)

// Identity describes who is performing an operation. It is resolved from the
// access token by the auth middleware and threaded through the services.
type Identity struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	Name   string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == enums.MemberRoleAdmin
}

// Actor maps the identity onto the journal actor taxonomy.
func (i Identity) Actor() enums.Actor {
	if i.IsAdmin() {
		return enums.ActorAdmin
	}
	return enums.ActorUser
}

// ActorName returns the display name recorded in the journal, nil when blank.
func (i Identity) ActorName() *string {
	if i.Name == "" {
		return nil
	}
	name := i.Name
	return &name
}
