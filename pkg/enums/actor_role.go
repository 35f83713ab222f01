package enums

import "fmt"

// ActorRole identifies the side an authenticated actor acts for.
type ActorRole string

const (
	ActorRoleSeller ActorRole = "seller"
	ActorRoleMarket ActorRole = "market"
	ActorRoleAdmin  ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleSeller,
	ActorRoleMarket,
	ActorRoleAdmin,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsParty reports whether the role is one of the two sides of an entry.
func (r ActorRole) IsParty() bool {
	return r == ActorRoleSeller || r == ActorRoleMarket
}

// Counterparty returns the opposing side of an entry, or "" for non-party roles.
func (r ActorRole) Counterparty() ActorRole {
	switch r {
	case ActorRoleSeller:
		return ActorRoleMarket
	case ActorRoleMarket:
		return ActorRoleSeller
	default:
		return ""
	}
}

func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
