package enums

import "fmt"

// ActorRole maps to the actor_role enum in Postgres.
type ActorRole string

const (
	RoleAdmin       ActorRole = "admin"
	RoleDistributor ActorRole = "distributor"
	RoleRetailer    ActorRole = "retailer"
	RoleSalesRep    ActorRole = "sales_rep"
)

var validActorRoles = []ActorRole{
	RoleAdmin,
	RoleDistributor,
	RoleRetailer,
	RoleSalesRep,
}

// IsValid reports whether the value matches the canonical actor_role enum.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role carries administrative privileges.
func (r ActorRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
