package memory

import (
	"context"

	domaincommissions "roomies/internal/domain/commissions"
	domainrooms "roomies/internal/domain/rooms"
)

// Tiers resolves owner commission tiers from the store. Owners without a tier pay the default
// rate.
type Tiers struct {
	Store *Store
}

func (t Tiers) CommissionRate(_ context.Context, owner domainrooms.OwnerID) (domaincommissions.Tier, error) {
	t.Store.mu.Lock()
	defer t.Store.mu.Unlock()
	if tier, ok := t.Store.tiers[owner]; ok {
		return tier, nil
	}
	return domaincommissions.DefaultTier(owner), nil
}

func (t Tiers) SetTier(_ context.Context, tier domaincommissions.Tier) error {
	t.Store.SetTier(tier)
	return nil
}

var _ domaincommissions.OwnerTiers = Tiers{}
