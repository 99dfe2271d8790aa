package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func newEntry(code, shopItem string) *models.Entry {
	now := time.Now()
	return &models.Entry{
		PetCode:         domain.PetCode(code),
		OriginSource:    domain.OriginShop,
		OriginRefs:      models.OriginRefs{ShopItemID: shopItem},
		Descriptive:     models.Descriptive{Name: "Rex", ImageRefs: []string{"a.png"}},
		CurrentLocation: models.LocationAtShop,
		CurrentStatus:   models.StatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *InMemorySuite) TestInsertAndGet() {
	s.Require().NoError(s.store.Insert(s.ctx, newEntry("DOG12345", "item-1")))

	got, err := s.store.Get(s.ctx, "DOG12345")
	s.Require().NoError(err)
	s.Equal("Rex", got.Descriptive.Name)

	got.Descriptive.ImageRefs[0] = "mutated"
	again, err := s.store.Get(s.ctx, "DOG12345")
	s.Require().NoError(err)
	s.Equal("a.png", again.Descriptive.ImageRefs[0], "callers get copies")

	_, err = s.store.Get(s.ctx, "CAT00001")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *InMemorySuite) TestInsertConflicts() {
	s.Require().NoError(s.store.Insert(s.ctx, newEntry("DOG12345", "item-1")))

	err := s.store.Insert(s.ctx, newEntry("DOG12345", "item-2"))
	s.True(errors.Is(err, sentinel.ErrConflict), "duplicate code")

	err = s.store.Insert(s.ctx, newEntry("CAT00001", "item-1"))
	s.True(errors.Is(err, sentinel.ErrConflict), "duplicate origin ref")
}

func (s *InMemorySuite) TestUpdateRejectsRefOwnedElsewhere() {
	s.Require().NoError(s.store.Insert(s.ctx, newEntry("DOG12345", "item-1")))
	s.Require().NoError(s.store.Insert(s.ctx, newEntry("CAT00001", "item-2")))

	e, err := s.store.Get(s.ctx, "CAT00001")
	s.Require().NoError(err)
	e.OriginRefs.AdoptionPetID = "ad-1"
	s.Require().NoError(s.store.Update(s.ctx, e))

	found, err := s.store.FindByOriginRef(s.ctx, models.OriginRefs{AdoptionPetID: "ad-1"})
	s.Require().NoError(err)
	s.Equal(domain.PetCode("CAT00001"), found.PetCode)

	other, err := s.store.Get(s.ctx, "DOG12345")
	s.Require().NoError(err)
	other.OriginRefs.AdoptionPetID = "ad-1"
	s.True(errors.Is(s.store.Update(s.ctx, other), sentinel.ErrConflict))

	missing := newEntry("EMU55555", "")
	s.True(errors.Is(s.store.Update(s.ctx, missing), sentinel.ErrNotFound))
}

func (s *InMemorySuite) TestAppendHistory() {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	first := &models.HistoryRecord{PetCode: "DOG12345", NewOwnerID: "alice", TransferDate: base, IdempotencyKey: "k1"}
	second := &models.HistoryRecord{PetCode: "DOG12345", PreviousOwnerID: "alice", NewOwnerID: "bob", TransferDate: base.Add(time.Hour)}
	s.Require().NoError(s.store.AppendHistory(s.ctx, first))
	s.Require().NoError(s.store.AppendHistory(s.ctx, second))
	s.NotEmpty(first.ID)
	s.Equal(2, second.Seq)

	history, err := s.store.History(s.ctx, "DOG12345")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Require().NotNil(history[0].EndDate)
	s.Equal(base.Add(time.Hour), *history[0].EndDate)
	s.Nil(history[1].EndDate)

	dup := &models.HistoryRecord{PetCode: "DOG12345", NewOwnerID: "carol", TransferDate: base, IdempotencyKey: "k1"}
	s.True(errors.Is(s.store.AppendHistory(s.ctx, dup), sentinel.ErrConflict))

	rec, err := s.store.FindHistoryByKey(s.ctx, "DOG12345", "k1")
	s.Require().NoError(err)
	s.Equal(domain.OwnerID("alice"), rec.NewOwnerID)

	_, err = s.store.FindHistoryByKey(s.ctx, "DOG12345", "nope")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *InMemorySuite) TestSearchPagesInCodeOrder() {
	for _, code := range []string{"EMU00003", "CAT00001", "DOG00002"} {
		s.Require().NoError(s.store.Insert(s.ctx, newEntry(code, "item-"+code)))
	}

	res, err := s.store.Search(s.ctx, models.Filters{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Equal(3, res.Total)
	s.Require().Len(res.Entries, 2)
	s.Equal(domain.PetCode("DOG00002"), res.Entries[0].PetCode)
	s.Equal(domain.PetCode("EMU00003"), res.Entries[1].PetCode)

	res, err = s.store.Search(s.ctx, models.Filters{Limit: 10, Offset: 10})
	s.Require().NoError(err)
	s.Empty(res.Entries)
}

func (s *InMemorySuite) TestExistingCodes() {
	s.Require().NoError(s.store.Insert(s.ctx, newEntry("DOG12345", "item-1")))

	existing, err := s.store.ExistingCodes(s.ctx, []string{"DOG12345", "CAT00001"})
	s.Require().NoError(err)
	s.True(existing["DOG12345"])
	s.False(existing["CAT00001"])
}
