package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"petregistry/internal/identity"
	"petregistry/internal/registry/models"
	regservice "petregistry/internal/registry/service"
	regstore "petregistry/internal/registry/store"
	resmodels "petregistry/internal/reservation/models"
	"petregistry/internal/reservation/store"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/tx"
	"petregistry/pkg/requestcontext"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []audit.OpsEvent
}

func (r *recordingTracker) Track(_ context.Context, e audit.OpsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// fixedCodes hands out codes in order and repeats the last one.
type fixedCodes struct {
	codes []string
	calls int
}

func (g *fixedCodes) Generate(context.Context) (string, error) {
	c := g.codes[min(g.calls, len(g.codes)-1)]
	g.calls++
	return c, nil
}

type ReservationSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	registry *regservice.Service
	store    *store.InMemory
	tracker  *recordingTracker
	svc      *Service
	pet      domain.PetCode
}

func TestReservationSuite(t *testing.T) {
	suite.Run(t, new(ReservationSuite))
}

func (s *ReservationSuite) SetupTest() {
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	runner := tx.NewShardedRunner(time.Second)

	rs := regstore.NewInMemory()
	s.registry = regservice.New(rs, identity.New(identity.PetCodeFormat, rs), runner)
	s.store = store.NewInMemory()
	s.tracker = &recordingTracker{}
	s.svc = New(s.store, s.registry, identity.New(identity.ReservationCodeFormat, s.store), runner,
		WithPendingTTL(time.Hour), WithOpsTracker(s.tracker))

	entry, _, err := s.registry.RegisterOrRefresh(s.ctx, models.Identity{
		PetCode:      "DOG12345",
		OriginSource: domain.OriginShop,
		OriginRefs:   models.OriginRefs{ShopItemID: "item-1"},
		AddedBy:      "staff-1",
	}, nil)
	s.Require().NoError(err)
	s.pet = entry.PetCode
}

func (s *ReservationSuite) create() *resmodels.Reservation {
	r, err := s.svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
	s.Require().NoError(err)
	return r
}

func (s *ReservationSuite) petStatus() string {
	entry, err := s.registry.GetByPetCode(s.ctx, s.pet)
	s.Require().NoError(err)
	return entry.CurrentStatus
}

func (s *ReservationSuite) TestCreateReservesPet() {
	r := s.create()

	s.Equal(resmodels.StatusPending, r.Status)
	s.Require().NotNil(r.ExpiresAt)
	s.Equal(s.now.Add(time.Hour), *r.ExpiresAt)
	_, err := domain.ParseReservationCode(string(r.Code))
	s.NoError(err)
	s.Equal(models.StatusReserved, s.petStatus())

	byCode, err := s.svc.GetByCode(s.ctx, r.Code)
	s.Require().NoError(err)
	s.Equal(r.ID, byCode.ID)
	s.Require().Len(s.tracker.events, 1)
	s.Equal(audit.EventReservationCreated, s.tracker.events[0].Action)
}

func (s *ReservationSuite) TestCreateRejectsSecondActiveReservation() {
	s.create()
	_, err := s.svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-2"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ReservationSuite) TestCreatePreconditions() {
	_, err := s.svc.Create(s.ctx, CreateRequest{PetCode: "CAT99999", RequesterID: "cust-1"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.Create(s.ctx, CreateRequest{PetCode: s.pet})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	owner := domain.OwnerID("cust-1")
	_, err = s.registry.UpdateState(s.ctx, s.pet, models.State{
		OwnerID:  &owner,
		Transfer: &models.TransferDetails{Type: models.TransferManual},
	}, "staff-1")
	s.Require().NoError(err)
	_, err = s.svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ReservationSuite) TestCreateRejectsDeceasedPet() {
	_, err := s.registry.UpdateState(s.ctx, s.pet, models.State{Deceased: &models.Deceased{Reason: "illness"}}, "vet-1")
	s.Require().NoError(err)

	_, err = s.svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ReservationSuite) TestHappyPathToPaid() {
	r := s.create()
	steps := []struct {
		to    resmodels.Status
		actor string
		note  string
	}{
		{resmodels.StatusManagerReview, "mgr-1", ""},
		{resmodels.StatusApproved, "mgr-1", "references checked"},
		{resmodels.StatusPaymentPending, "system", ""},
		{resmodels.StatusPaid, "system", ""},
	}
	for _, step := range steps {
		var err error
		r, err = s.svc.Transition(s.ctx, r.ID, step.to, step.actor, step.note)
		s.Require().NoError(err, step.to)
		s.Equal(step.to, r.Status)
		s.Nil(r.ExpiresAt)
	}

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Timeline, 5)
	s.Equal("references checked", got.Timeline[2].Note)
	s.Equal(models.StatusReserved, s.petStatus())
}

func (s *ReservationSuite) TestGatedTargetsRejected() {
	r := s.create()
	for _, to := range []resmodels.Status{resmodels.StatusReadyForHandover, resmodels.StatusHandedOver} {
		_, err := s.svc.Transition(s.ctx, r.ID, to, "mgr-1", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	}
}

func (s *ReservationSuite) TestInvalidTransitionLeavesStatus() {
	r := s.create()
	_, err := s.svc.Transition(s.ctx, r.ID, resmodels.StatusPaid, "mgr-1", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(resmodels.StatusPending, got.Status)
	s.Len(got.Timeline, 1)
}

func (s *ReservationSuite) TestRejectReleasesPet() {
	r := s.create()
	r, err := s.svc.Transition(s.ctx, r.ID, resmodels.StatusRejected, "mgr-1", "incomplete application")
	s.Require().NoError(err)
	s.Equal(resmodels.StatusRejected, r.Status)
	s.Equal(models.StatusAvailable, s.petStatus())

	_, err = s.svc.Transition(s.ctx, r.ID, resmodels.StatusCancelled, "mgr-1", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	again, err := s.svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-2"})
	s.Require().NoError(err)
	s.NotEqual(r.Code, again.Code)
}

func (s *ReservationSuite) TestExpiredPendingOnlyCancels() {
	r := s.create()
	late := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))

	_, err := s.svc.Transition(late, r.ID, resmodels.StatusApproved, "mgr-1", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))

	r, err = s.svc.Transition(late, r.ID, resmodels.StatusCancelled, "cust-1", "changed mind")
	s.Require().NoError(err)
	s.Equal(resmodels.StatusCancelled, r.Status)
}

func (s *ReservationSuite) TestExpirePendingCancelsAsSystem() {
	r := s.create()

	n, err := s.svc.ExpirePending(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(n)

	late := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
	n, err = s.svc.ExpirePending(late, 10)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(resmodels.StatusCancelled, got.Status)
	last := got.Timeline[len(got.Timeline)-1]
	s.Equal(SystemActor, last.Actor)
	s.Equal(models.StatusAvailable, s.petStatus())

	n, err = s.svc.ExpirePending(late, 10)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ReservationSuite) TestCancelAfterPetDiedKeepsDeceasedStatus() {
	r := s.create()
	_, err := s.registry.UpdateState(s.ctx, s.pet, models.State{Deceased: &models.Deceased{Reason: "illness"}}, "vet-1")
	s.Require().NoError(err)

	_, err = s.svc.Transition(s.ctx, r.ID, resmodels.StatusCancelled, "mgr-1", "")
	s.Require().NoError(err)
	entry, err := s.registry.GetByPetCode(s.ctx, s.pet)
	s.Require().NoError(err)
	s.True(entry.IsDeceased)
}

func (s *ReservationSuite) TestReleaseRestoresOwnedPet() {
	owner := domain.OwnerID("owner-x")
	owned, _, err := s.registry.RegisterOrRefresh(s.ctx, models.Identity{
		PetCode:      "CAT54321",
		OriginSource: domain.OriginDirect,
		OriginRefs:   models.OriginRefs{DirectPetID: "direct-1"},
		AddedBy:      "owner-x",
	}, &models.State{OwnerID: &owner})
	s.Require().NoError(err)

	for _, target := range []resmodels.Status{resmodels.StatusCancelled, resmodels.StatusRejected} {
		r, err := s.svc.Create(s.ctx, CreateRequest{PetCode: owned.PetCode, RequesterID: "buyer-y"})
		s.Require().NoError(err)
		s.Equal(models.StatusOwned, r.PriorPetStatus)

		_, err = s.svc.Transition(s.ctx, r.ID, target, "mgr-1", "")
		s.Require().NoError(err)

		entry, err := s.registry.GetByPetCode(s.ctx, owned.PetCode)
		s.Require().NoError(err)
		s.Equal(owner, entry.CurrentOwnerID, string(target))
		s.Equal(models.LocationAtOwner, entry.CurrentLocation, string(target))
		s.Equal(models.StatusOwned, entry.CurrentStatus, string(target))
	}
}

func (s *ReservationSuite) TestReleaseKeepsStatusChangedWhileReserved() {
	r := s.create()
	treatment := "under_treatment"
	_, err := s.registry.ApplyState(s.ctx, s.pet, models.State{Status: &treatment}, "vet-1")
	s.Require().NoError(err)

	_, err = s.svc.Transition(s.ctx, r.ID, resmodels.StatusCancelled, "cust-1", "")
	s.Require().NoError(err)
	s.Equal(treatment, s.petStatus())
}

func (s *ReservationSuite) TestCreateRedrawsTakenCode() {
	taken := resmodels.NewReservation("RAB11111", "CAT00001", "", "cust-9", time.Hour, s.now)
	s.Require().NoError(s.store.Create(s.ctx, taken))

	s.Run("second draw succeeds", func() {
		codes := &fixedCodes{codes: []string{"RAB11111", "RAB22222"}}
		svc := New(s.store, s.registry, codes, tx.NewShardedRunner(time.Second))

		r, err := svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
		s.Require().NoError(err)
		s.Equal(domain.ReservationCode("RAB22222"), r.Code)
		s.Equal(2, codes.calls)

		_, err = svc.Transition(s.ctx, r.ID, resmodels.StatusCancelled, "cust-1", "")
		s.Require().NoError(err)
	})

	s.Run("repeated collision is reported as a code clash", func() {
		codes := &fixedCodes{codes: []string{"RAB11111"}}
		svc := New(s.store, s.registry, codes, tx.NewShardedRunner(time.Second))

		_, err := svc.Create(s.ctx, CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal("reservation code already in use, retry", dErrors.MessageOf(err))
		s.Equal(2, codes.calls)
		s.Equal(models.StatusAvailable, s.petStatus())
	})
}

func (s *ReservationSuite) TestList() {
	first := s.create()
	_, err := s.svc.Transition(s.ctx, first.ID, resmodels.StatusCancelled, "cust-1", "")
	s.Require().NoError(err)
	s.create()

	all, total, err := s.svc.List(s.ctx, resmodels.Filter{RequesterID: "cust-1"})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(all, 2)

	pending, total, err := s.svc.List(s.ctx, resmodels.Filter{Status: resmodels.StatusPending})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(resmodels.StatusPending, pending[0].Status)
}

func (s *ReservationSuite) TestUnknownReservation() {
	_, err := s.svc.Transition(s.ctx, domain.NewReservationID(), resmodels.StatusCancelled, "mgr-1", "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
