package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petregistry/pkg/domain"
)

func TestOriginRefs(t *testing.T) {
	refs := OriginRefs{ShopItemID: "item-1"}
	assert.Equal(t, 1, refs.Count())
	assert.Equal(t, "item-1", refs.For(domain.OriginShop))
	assert.Empty(t, refs.For(domain.OriginAdoption))

	merged := refs.Merge(OriginRefs{ShopItemID: "item-2", AdoptionPetID: "ad-9"})
	assert.Equal(t, "item-1", merged.ShopItemID, "existing refs are kept")
	assert.Equal(t, "ad-9", merged.AdoptionPetID)
	assert.Equal(t, 2, merged.Count())
}

func TestDescriptiveMerge(t *testing.T) {
	d := Descriptive{Name: "Rex", SpeciesRef: "dog", ImageRefs: []string{"a.png"}}
	out := d.Merge(Descriptive{Name: "Rexy", BreedRef: "beagle"})

	assert.Equal(t, "Rexy", out.Name)
	assert.Equal(t, "dog", out.SpeciesRef)
	assert.Equal(t, "beagle", out.BreedRef)
	assert.Equal(t, []string{"a.png"}, out.ImageRefs)
	assert.True(t, out.Matches("BEAG"))
	assert.False(t, out.Matches("cat"))
}

func TestEntryClone(t *testing.T) {
	now := time.Now()
	e := &Entry{PetCode: "DOG12345", Descriptive: Descriptive{ImageRefs: []string{"a"}}, LastTransferAt: &now}
	c := e.Clone()
	c.Descriptive.ImageRefs[0] = "b"
	*c.LastTransferAt = now.Add(time.Hour)

	assert.Equal(t, "a", e.Descriptive.ImageRefs[0])
	assert.Equal(t, now, *e.LastTransferAt)
	assert.Nil(t, (*Entry)(nil).Clone())
}

func TestFilters(t *testing.T) {
	t.Run("normalize clamps paging", func(t *testing.T) {
		f := Filters{Limit: 1000, Offset: -3, Term: "  rex "}.Normalize()
		assert.Equal(t, MaxSearchLimit, f.Limit)
		assert.Equal(t, 0, f.Offset)
		assert.Equal(t, "rex", f.Term)
		assert.Equal(t, DefaultSearchLimit, Filters{}.Normalize().Limit)
	})

	t.Run("match", func(t *testing.T) {
		e := &Entry{
			PetCode:         "DOG12345",
			OriginSource:    domain.OriginShop,
			CurrentLocation: LocationAtShop,
			CurrentStatus:   StatusAvailable,
			Descriptive:     Descriptive{Name: "Rex"},
		}
		assert.True(t, Filters{Term: "dog1"}.Match(e))
		assert.True(t, Filters{Term: "rex", Location: LocationAtShop}.Match(e))
		assert.False(t, Filters{Origin: domain.OriginAdoption}.Match(e))
		assert.False(t, Filters{OwnerID: "u-1"}.Match(e))

		e.IsDeceased = true
		assert.False(t, Filters{}.Match(e))
		assert.True(t, Filters{IncludeDeceased: true}.Match(e))
	})
}

func TestPlacementFor(t *testing.T) {
	cases := []struct {
		origin   domain.OriginSource
		native   string
		location Location
		status   string
	}{
		{domain.OriginShop, "available_for_sale", LocationAtShop, StatusAvailable},
		{domain.OriginShop, "SOLD", LocationAtOwner, StatusSold},
		{domain.OriginAdoption, "Under Treatment", LocationAtAdoptionCenter, "under_treatment"},
		{domain.OriginAdoption, "adopted", LocationAtOwner, StatusAdopted},
		{domain.OriginDirect, "active", LocationAtOwner, StatusOwned},
		{domain.OriginShop, "quarantine hold", LocationUnknown, "quarantine_hold"},
	}
	for _, tc := range cases {
		t.Run(string(tc.origin)+"/"+tc.native, func(t *testing.T) {
			p := PlacementFor(tc.origin, tc.native)
			assert.Equal(t, tc.location, p.Location)
			assert.Equal(t, tc.status, p.Status)
		})
	}
}

func TestParseLocation(t *testing.T) {
	l, err := ParseLocation(" AT_OWNER ")
	require.NoError(t, err)
	assert.Equal(t, LocationAtOwner, l)

	_, err = ParseLocation("on_the_moon")
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []HistoryRecord{
		{PreviousOwnerID: "breeder", NewOwnerID: "alice", TransferDate: base},
		{PreviousOwnerID: "alice", NewOwnerID: "bob", TransferDate: base.Add(24 * time.Hour)},
		{PreviousOwnerID: "bob", NewOwnerID: "alice", TransferDate: base.Add(48 * time.Hour)},
	}

	s := Summarize("DOG12345", "alice", history)
	assert.Equal(t, 3, s.TotalTransfers)
	assert.Equal(t, domain.OwnerID("breeder"), s.FirstOwnerID)
	assert.Equal(t, 3, s.DistinctOwners)
	require.NotNil(t, s.CurrentOwnerSince)
	assert.Equal(t, base.Add(48*time.Hour), *s.CurrentOwnerSince)

	empty := Summarize("CAT00001", "carol", nil)
	assert.Equal(t, domain.OwnerID("carol"), empty.FirstOwnerID)
	assert.Equal(t, 1, empty.DistinctOwners)
	assert.Nil(t, empty.CurrentOwnerSince)
}

func TestStatusAfterTransfer(t *testing.T) {
	assert.Equal(t, StatusSold, StatusAfterTransfer(domain.OriginShop, TransferPurchase))
	assert.Equal(t, StatusAdopted, StatusAfterTransfer(domain.OriginAdoption, TransferAdoption))
	assert.Equal(t, StatusOwned, StatusAfterTransfer(domain.OriginDirect, TransferPurchase))
	assert.Equal(t, StatusOwned, StatusAfterTransfer(domain.OriginShop, TransferManual))
}
