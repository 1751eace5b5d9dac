package scope

import (
	"github.com/google/uuid"

	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	pkgerrors "github.com/varunnair-io/distriflow-backend/pkg/errors"
)

// Actor identifies the authenticated principal performing an operation.
type Actor struct {
	UserID        uuid.UUID
	Role          enums.ActorRole
	DistributorID *uuid.UUID
}

// IsAdmin reports whether the actor holds the administrative role.
func (a Actor) IsAdmin() bool {
	return a.Role.IsAdmin()
}

// ResolveDistributor returns the distributor the operation may act on.
// Non-administrative actors are locked to their own distributor; an
// administrative actor must name an explicit target. The check runs before
// any side effect.
func ResolveDistributor(actor Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if actor.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.Role.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}

	if actor.IsAdmin() {
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "target distributor id required")
		}
		return *requested, nil
	}

	if actor.DistributorID == nil || *actor.DistributorID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "distributor context missing")
	}
	if requested != nil && *requested != uuid.Nil && *requested != *actor.DistributorID {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "distributor scope mismatch")
	}
	return *actor.DistributorID, nil
}

// RequireAdmin fails unless the actor holds the administrative role.
func RequireAdmin(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "administrator role required")
	}
	return nil
}
