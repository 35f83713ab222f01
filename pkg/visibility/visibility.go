package visibility

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

// Filter restricts rows carrying seller_id and market_id columns to what an actor may see.
// A zero Filter matches every row.
type Filter struct {
	SellerID *uuid.UUID
	MarketID *uuid.UUID
}

// Scope applies the filter as a gorm scope. table qualifies the columns when non-empty.
func (f Filter) Scope(table string) func(*gorm.DB) *gorm.DB {
	prefix := ""
	if table != "" {
		prefix = table + "."
	}
	return func(db *gorm.DB) *gorm.DB {
		if f.SellerID != nil {
			db = db.Where(prefix+"seller_id = ?", *f.SellerID)
		}
		if f.MarketID != nil {
			db = db.Where(prefix+"market_id = ?", *f.MarketID)
		}
		return db
	}
}

// EntryFilter returns the rows an actor may list. Sellers see their own entries, market staff
// see their market's entries and admins see everything. ok is false when nothing is visible.
func EntryFilter(actor auth.Actor) (Filter, bool) {
	switch actor.Role {
	case enums.ActorRoleSeller:
		id := actor.ID
		return Filter{SellerID: &id}, true
	case enums.ActorRoleMarket:
		if actor.MarketID == nil {
			return Filter{}, false
		}
		id := *actor.MarketID
		return Filter{MarketID: &id}, true
	case enums.ActorRoleAdmin:
		return Filter{}, true
	default:
		return Filter{}, false
	}
}

// PendingFilter scopes pending requests the actor must act on. Only the two parties of an
// entry resolve requests, so every other role gets ok=false.
func PendingFilter(actor auth.Actor) (Filter, bool) {
	if !actor.Role.IsParty() {
		return Filter{}, false
	}
	return EntryFilter(actor)
}

// EnsureParty fails unless the actor is the owning seller or staff of the entry's market.
func EnsureParty(actor auth.Actor, sellerID, marketID uuid.UUID) error {
	if actor.Owns(sellerID) || actor.InMarket(marketID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "entry belongs to another seller or market")
}

// EnsureResolver fails unless the actor is the counterparty of origin on this entry.
func EnsureResolver(actor auth.Actor, origin enums.ActorRole, sellerID, marketID uuid.UUID) error {
	switch origin.Counterparty() {
	case enums.ActorRoleSeller:
		if actor.Owns(sellerID) {
			return nil
		}
	case enums.ActorRoleMarket:
		if actor.InMarket(marketID) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "only the counterparty of the request may resolve it")
}
