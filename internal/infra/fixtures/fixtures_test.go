package fixtures

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaincommissions "roomies/internal/domain/commissions"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/money"
	"roomies/internal/infra/storage/memory"
)

func TestLoad(t *testing.T) {
	catalog, err := Load("testdata/catalog.yaml")
	require.NoError(t, err)

	require.Len(t, catalog.Rooms, 2)
	assert.Equal(t, domainrooms.RoomID("room-1"), catalog.Rooms[0].ID)
	assert.Equal(t, money.MustMajor(8000), catalog.Rooms[0].MonthlyRent)
	assert.Equal(t, 2, catalog.Rooms[0].TotalSlots)
	assert.Equal(t, money.Must(1250050, "INR"), catalog.Rooms[1].MonthlyRent)

	require.Len(t, catalog.Tiers, 1)
	assert.Equal(t, domaincommissions.Tier{OwnerID: "owner-2", Name: "premium", Rate: 20, DiscountRate: 10}, catalog.Tiers[0])
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "rooms:\n  - id: r\n    owner_id: o\n    monthly_rent: \"1\"\n    total_slots: 1\n    colour: blue\n",
		"missing id":     "rooms:\n  - owner_id: o\n    monthly_rent: \"1\"\n    total_slots: 1\n",
		"duplicate room": "rooms:\n  - {id: r, owner_id: o, monthly_rent: \"1\", total_slots: 1}\n  - {id: r, owner_id: o, monthly_rent: \"1\", total_slots: 1}\n",
		"bad rent":       "rooms:\n  - {id: r, owner_id: o, monthly_rent: cheap, total_slots: 1}\n",
		"overfull room":  "rooms:\n  - {id: r, owner_id: o, monthly_rent: \"1\", total_slots: 1, occupied_slots: 2}\n",
		"no owner":       "rooms:\n  - {id: r, monthly_rent: \"1\", total_slots: 1}\n",
		"tier rate":      "rooms: []\ntiers:\n  - {owner_id: o, name: x, rate: 120}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	catalog, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, catalog.Rooms)
}

func TestSeed_MemoryStore(t *testing.T) {
	catalog, err := Load("testdata/catalog.yaml")
	require.NoError(t, err)

	store := memory.NewStore()
	tiers := memory.Tiers{Store: store}
	require.NoError(t, Seed(context.Background(), memory.Factory{Store: store}, tiers, catalog))

	room, ok := store.Room("room-2")
	require.True(t, ok)
	assert.Equal(t, "HSR single", room.Title)
	assert.Equal(t, 1, room.AvailableSlots())

	tier, err := tiers.CommissionRate(context.Background(), "owner-2")
	require.NoError(t, err)
	assert.Equal(t, "premium", tier.Name)
	tier, err = tiers.CommissionRate(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, domaincommissions.DefaultTier("owner-1"), tier)
}

func TestSeed_TierFailure(t *testing.T) {
	boom := errors.New("tiers offline")
	catalog := Catalog{Tiers: []domaincommissions.Tier{{OwnerID: "owner-1", Name: "premium", Rate: 20}}}
	err := Seed(context.Background(), memory.Factory{Store: memory.NewStore()}, TierWriterFunc(func(context.Context, domaincommissions.Tier) error {
		return boom
	}), catalog)
	assert.ErrorIs(t, err, boom)
}
