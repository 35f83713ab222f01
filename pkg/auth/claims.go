package auth

import (
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	MarketID *uuid.UUID
	Name     string
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     enums.ActorRole `json:"role"`
	MarketID *uuid.UUID      `json:"market_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated identity the workflow engines act for.
type Actor struct {
	ID       uuid.UUID
	Role     enums.ActorRole
	MarketID *uuid.UUID
	Name     string
}

// Actor converts verified claims into the workflow identity.
func (c *AccessTokenClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{ID: c.UserID, Role: c.Role, MarketID: c.MarketID, Name: c.Name}
}

// InMarket reports whether the actor is market staff for marketID.
func (a Actor) InMarket(marketID uuid.UUID) bool {
	return a.Role == enums.ActorRoleMarket && a.MarketID != nil && *a.MarketID == marketID
}

// Owns reports whether the actor is the seller identified by sellerID.
func (a Actor) Owns(sellerID uuid.UUID) bool {
	return a.Role == enums.ActorRoleSeller && a.ID == sellerID
}
