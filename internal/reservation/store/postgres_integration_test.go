//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"petregistry/internal/reservation/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/sentinel"
	"petregistry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	ctx   context.Context
	now   time.Time
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.Shared().Postgres(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.pg.Truncate(s.ctx, "handover_otps", "reservation_timeline", "reservations"))
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) newReservation(code domain.ReservationCode, pet domain.PetCode) *models.Reservation {
	return models.NewReservation(code, pet, "", "cust-1", time.Hour, s.now)
}

func (s *PostgresStoreSuite) TestCreateAndLoad() {
	r := s.newReservation("RAB12345", "DOG12345")
	s.Require().NoError(s.store.Create(s.ctx, r))

	got, err := s.store.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.Code, got.Code)
	s.Equal(models.StatusPending, got.Status)
	s.Require().Len(got.Timeline, 1)
	s.Require().NotNil(got.ExpiresAt)

	byCode, err := s.store.GetByCode(s.ctx, "RAB12345")
	s.Require().NoError(err)
	s.Equal(r.ID, byCode.ID)

	active, err := s.store.ActiveForPet(s.ctx, "DOG12345")
	s.Require().NoError(err)
	s.Equal(r.ID, active.ID)
}

func (s *PostgresStoreSuite) TestOneActiveReservationPerPet() {
	s.Require().NoError(s.store.Create(s.ctx, s.newReservation("RAB12345", "DOG12345")))

	err := s.store.Create(s.ctx, s.newReservation("RAB54321", "DOG12345"))
	s.ErrorIs(err, sentinel.ErrConflict)

	err = s.store.Create(s.ctx, s.newReservation("RAB12345", "CAT12345"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestTerminalReservationFreesPet() {
	r := s.newReservation("RAB12345", "DOG12345")
	s.Require().NoError(s.store.Create(s.ctx, r))

	entry := r.ApplyTransition(models.StatusCancelled, "cust-1", "", s.now)
	s.Require().NoError(s.store.Update(s.ctx, r))
	s.Require().NoError(s.store.AppendTimeline(s.ctx, r.ID, entry))

	_, err := s.store.ActiveForPet(s.ctx, "DOG12345")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Create(s.ctx, s.newReservation("RAB54321", "DOG12345")))

	got, err := s.store.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(got.Timeline, 2)
	s.Nil(got.ExpiresAt)
}

func (s *PostgresStoreSuite) TestListAndExpired() {
	old := models.NewReservation("RAB11111", "DOG11111", "", "cust-1", time.Minute, s.now.Add(-time.Hour))
	fresh := s.newReservation("RAB22222", "DOG22222")
	s.Require().NoError(s.store.Create(s.ctx, old))
	s.Require().NoError(s.store.Create(s.ctx, fresh))

	list, total, err := s.store.List(s.ctx, models.Filter{RequesterID: "cust-1"}.Normalize())
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal(old.ID, list[0].ID)

	expired, err := s.store.ListExpired(s.ctx, s.now, 10)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(old.ID, expired[0].ID)

	codes, err := s.store.ExistingCodes(s.ctx, []string{"RAB11111", "RAB99999"})
	s.Require().NoError(err)
	s.True(codes["RAB11111"])
	s.False(codes["RAB99999"])
}

func (s *PostgresStoreSuite) TestOTPsAreSingleUse() {
	r := s.newReservation("RAB12345", "DOG12345")
	s.Require().NoError(s.store.Create(s.ctx, r))

	first := &models.OTPRecord{ReservationID: r.ID, Hash: "h1", IssuedAt: s.now}
	second := &models.OTPRecord{ReservationID: r.ID, Hash: "h2", IssuedAt: s.now.Add(time.Second)}
	s.Require().NoError(s.store.AppendOTP(s.ctx, first))
	s.Require().NoError(s.store.AppendOTP(s.ctx, second))

	latest, err := s.store.LatestUnusedOTP(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("h2", latest.Hash)

	s.Require().NoError(s.store.MarkOTPUsed(s.ctx, latest.ID, s.now))
	s.ErrorIs(s.store.MarkOTPUsed(s.ctx, latest.ID, s.now), sentinel.ErrAlreadyUsed)

	_, err = s.store.LatestUnusedOTP(s.ctx, r.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	all, err := s.store.OTPs(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresStoreSuite) TestOTPsWithSameIssueTimeKeepAppendOrder() {
	r := s.newReservation("RAB12345", "DOG12345")
	s.Require().NoError(s.store.Create(s.ctx, r))

	for _, hash := range []string{"h1", "h2", "h3"} {
		s.Require().NoError(s.store.AppendOTP(s.ctx, &models.OTPRecord{ReservationID: r.ID, Hash: hash, IssuedAt: s.now}))
	}

	latest, err := s.store.LatestUnusedOTP(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("h3", latest.Hash)

	all, err := s.store.OTPs(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"h1", "h2", "h3"}, []string{all[0].Hash, all[1].Hash, all[2].Hash})
}

func (s *PostgresStoreSuite) TestPriorPetStatusRoundTrips() {
	r := s.newReservation("RAB12345", "DOG12345")
	r.PriorPetStatus = "owned"
	s.Require().NoError(s.store.Create(s.ctx, r))

	got, err := s.store.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("owned", got.PriorPetStatus)
}
