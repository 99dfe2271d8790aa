package handover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"petregistry/internal/handover/lockout"
	"petregistry/internal/identity"
	"petregistry/internal/notify"
	"petregistry/internal/registry/models"
	regservice "petregistry/internal/registry/service"
	regstore "petregistry/internal/registry/store"
	resmodels "petregistry/internal/reservation/models"
	resservice "petregistry/internal/reservation/service"
	"petregistry/internal/reservation/store"
	"petregistry/internal/transfer"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/audit/publishers/compliance"
	auditmemory "petregistry/pkg/platform/audit/store/memory"
	"petregistry/pkg/platform/tx"
	"petregistry/pkg/requestcontext"
)

type sequenceOTP struct {
	mu    sync.Mutex
	codes []string
}

func (g *sequenceOTP) next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.codes) == 0 {
		return "", errors.New("no codes left")
	}
	c := g.codes[0]
	g.codes = g.codes[1:]
	return c, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.OTPMessage
	err  error
}

func (r *recordingSender) SendOTP(_ context.Context, msg notify.OTPMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

type recordingSecurity struct {
	mu     sync.Mutex
	events []audit.SecurityEvent
}

func (r *recordingSecurity) Emit(_ context.Context, e audit.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type failingTransfer struct{}

func (failingTransfer) Transfer(context.Context, transfer.Request) (*transfer.Result, error) {
	return nil, dErrors.New(dErrors.CodeUnavailable, "registry unavailable")
}

type HandoverSuite struct {
	suite.Suite
	ctx          context.Context
	runner       tx.Runner
	registry     *regservice.Service
	store        *store.InMemory
	reservations *resservice.Service
	engine       *transfer.Engine
	guard        *lockout.Guard
	auditStore   *auditmemory.InMemoryStore
	sender       *recordingSender
	security     *recordingSecurity
	otps         *sequenceOTP
	svc          *Service
	pet          domain.PetCode
}

func TestHandoverSuite(t *testing.T) {
	suite.Run(t, new(HandoverSuite))
}

func (s *HandoverSuite) SetupTest() {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.runner = tx.NewShardedRunner(time.Second)

	rs := regstore.NewInMemory()
	s.registry = regservice.New(rs, identity.New(identity.PetCodeFormat, rs), s.runner)
	s.store = store.NewInMemory()
	s.reservations = resservice.New(s.store, s.registry, identity.New(identity.ReservationCodeFormat, s.store), s.runner)
	s.auditStore = auditmemory.NewInMemoryStore()
	publisher := compliance.New(s.auditStore)
	s.engine = transfer.New(s.registry, s.runner, publisher)
	s.guard = lockout.NewGuard(lockout.NewInMemoryStore(), lockout.Config{MaxAttempts: 3})
	s.sender = &recordingSender{}
	s.security = &recordingSecurity{}
	s.otps = &sequenceOTP{codes: []string{"482913", "775120", "310846"}}
	s.svc = s.newService(s.engine)

	entry, _, err := s.registry.RegisterOrRefresh(s.ctx, models.Identity{
		PetCode:      "DOG12345",
		OriginSource: domain.OriginShop,
		OriginRefs:   models.OriginRefs{ShopItemID: "item-7"},
		AddedBy:      "staff-1",
	}, nil)
	s.Require().NoError(err)
	s.pet = entry.PetCode
}

func (s *HandoverSuite) newService(t Transferer) *Service {
	return New(s.store, s.registry, t, s.guard, s.runner, compliance.New(s.auditStore),
		WithOTPGenerator(s.otps.next),
		WithOTPHashCost(bcrypt.MinCost),
		WithSender(s.sender),
		WithSecurityPublisher(s.security),
	)
}

func (s *HandoverSuite) paidReservation() *resmodels.Reservation {
	r, err := s.reservations.Create(s.ctx, resservice.CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
	s.Require().NoError(err)
	for _, to := range []resmodels.Status{resmodels.StatusApproved, resmodels.StatusPaymentPending, resmodels.StatusPaid} {
		r, err = s.reservations.Transition(s.ctx, r.ID, to, "manager-1", "")
		s.Require().NoError(err)
	}
	return r
}

func (s *HandoverSuite) scheduled() *resmodels.Reservation {
	r := s.paidReservation()
	r, err := s.svc.ScheduleHandover(s.ctx, r.ID, Schedule{
		At:       time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC),
		Location: "Shop counter 2",
	}, "staff-1")
	s.Require().NoError(err)
	return r
}

func (s *HandoverSuite) history() []models.HistoryRecord {
	h, err := s.registry.GetHistory(s.ctx, s.pet)
	s.Require().NoError(err)
	return h
}

func (s *HandoverSuite) TestScheduleIssuesPasscode() {
	r := s.scheduled()

	s.Equal(resmodels.StatusReadyForHandover, r.Status)
	s.Require().NotNil(r.ScheduledAt)
	s.Equal("Shop counter 2", r.HandoverLocation)

	otps, err := s.store.OTPs(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Require().Len(otps, 1)
	s.NotEqual("482913", otps[0].Hash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(otps[0].Hash), []byte("482913")))

	s.Require().Len(s.sender.sent, 1)
	s.Equal("482913", s.sender.sent[0].OTP)
	s.Equal("cust-1", s.sender.sent[0].Recipient)
	s.Equal(string(r.Code), s.sender.sent[0].ReservationCode)
}

func (s *HandoverSuite) TestScheduleOnlyFromPaid() {
	r, err := s.reservations.Create(s.ctx, resservice.CreateRequest{PetCode: s.pet, RequesterID: "cust-1"})
	s.Require().NoError(err)

	_, err = s.svc.ScheduleHandover(s.ctx, r.ID, Schedule{At: time.Now()}, "staff-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Empty(s.sender.sent)

	_, err = s.svc.ScheduleHandover(s.ctx, r.ID, Schedule{}, "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *HandoverSuite) TestNotifyFailureDoesNotFailSchedule() {
	s.sender.err = errors.New("broker down")
	r := s.scheduled()
	s.Equal(resmodels.StatusReadyForHandover, r.Status)
}

func (s *HandoverSuite) TestHappyPathCompletesHandover() {
	r := s.scheduled()

	done, err := s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.Require().NoError(err)
	s.Equal(resmodels.StatusHandedOver, done.Reservation.Status)
	s.Equal(domain.OwnerID("cust-1"), done.Transfer.Entry.CurrentOwnerID)

	entry, err := s.registry.GetByPetCode(s.ctx, s.pet)
	s.Require().NoError(err)
	s.Equal(domain.OwnerID("cust-1"), entry.CurrentOwnerID)
	s.Equal(models.StatusSold, entry.CurrentStatus)
	s.Equal(models.LocationAtOwner, entry.CurrentLocation)

	hist := s.history()
	s.Require().Len(hist, 1)
	s.Equal(models.TransferPurchase, hist[0].TransferType)
	s.Equal(r.ID.String(), hist[0].IdempotencyKey)

	stored, err := s.store.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	last := stored.Timeline[len(stored.Timeline)-1]
	s.Equal(resmodels.StatusHandedOver, last.Status)
	s.Equal("staff-1", last.Actor)

	events, err := s.auditStore.ListBySubject(s.ctx, string(s.pet))
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, string(audit.EventOwnershipTransferred))
	s.Contains(actions, string(audit.EventHandoverCompleted))
}

func (s *HandoverSuite) TestWrongPasscodeChangesNothing() {
	r := s.scheduled()

	_, err := s.svc.VerifyAndComplete(s.ctx, r.ID, "000000", "staff-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidOTP))

	stored, err := s.store.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(resmodels.StatusReadyForHandover, stored.Status)
	s.Empty(s.history())
	s.Require().Len(s.security.events, 1)
	s.Equal(audit.EventOTPFailed, s.security.events[0].Action)
	s.Equal(string(r.Code), s.security.events[0].Subject)

	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.NoError(err)
}

func (s *HandoverSuite) TestPasscodeIsSingleUse() {
	r := s.scheduled()
	_, err := s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.Require().NoError(err)

	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCompleted))
	s.Len(s.history(), 1)

	_, err = s.svc.RegenerateOTP(s.ctx, r.ID, "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCompleted))
}

func (s *HandoverSuite) TestStalePasscodeAfterRegenerate() {
	r := s.scheduled()
	_, err := s.svc.RegenerateOTP(s.ctx, r.ID, "staff-1")
	s.Require().NoError(err)

	otps, err := s.store.OTPs(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(otps, 2)
	s.Require().Len(s.sender.sent, 2)
	s.Equal("775120", s.sender.sent[1].OTP)

	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidOTP))

	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "775120", "staff-1")
	s.NoError(err)
}

func (s *HandoverSuite) TestRegenerateRequiresReady() {
	r := s.paidReservation()
	_, err := s.svc.RegenerateOTP(s.ctx, r.ID, "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *HandoverSuite) TestVerifyBeforeScheduleIsInvalidTransition() {
	r := s.paidReservation()
	_, err := s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *HandoverSuite) TestLockoutAfterRepeatedFailures() {
	r := s.scheduled()
	for i := 0; i < 3; i++ {
		_, err := s.svc.VerifyAndComplete(s.ctx, r.ID, "000000", "staff-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidOTP))
	}
	s.Require().Len(s.security.events, 3)
	s.Equal(audit.EventHandoverLocked, s.security.events[2].Action)

	_, err := s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))

	// Regeneration does not lift the lock.
	_, err = s.svc.RegenerateOTP(s.ctx, r.ID, "staff-1")
	s.Require().NoError(err)
	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "775120", "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))

	later := requestcontext.WithTime(context.Background(), requestcontext.Now(s.ctx).Add(lockout.DefaultDuration+time.Minute))
	_, err = s.svc.VerifyAndComplete(later, r.ID, "775120", "staff-1")
	s.NoError(err)
}

func (s *HandoverSuite) TestTransferFailureLeavesReservationReady() {
	r := s.scheduled()
	svc := s.newService(failingTransfer{})

	_, err := svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	stored, err := s.store.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(resmodels.StatusReadyForHandover, stored.Status)
	s.Empty(s.history())
	entry, err := s.registry.GetByPetCode(s.ctx, s.pet)
	s.Require().NoError(err)
	s.True(entry.CurrentOwnerID.IsZero())
	s.Empty(s.security.events)

	// The passcode was not consumed.
	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.NoError(err)
}

func (s *HandoverSuite) TestAdoptionOriginTransfersAsAdoption() {
	entry, _, err := s.registry.RegisterOrRefresh(s.ctx, models.Identity{
		OriginSource: domain.OriginAdoption,
		OriginRefs:   models.OriginRefs{AdoptionPetID: "adopt-3"},
		AddedBy:      "staff-1",
	}, nil)
	s.Require().NoError(err)
	s.pet = entry.PetCode

	r := s.scheduled()
	_, err = s.svc.VerifyAndComplete(s.ctx, r.ID, "482913", "staff-1")
	s.Require().NoError(err)

	got, err := s.registry.GetByPetCode(s.ctx, s.pet)
	s.Require().NoError(err)
	s.Equal(models.StatusAdopted, got.CurrentStatus)
	hist := s.history()
	s.Require().Len(hist, 1)
	s.Equal(models.TransferAdoption, hist[0].TransferType)
}

func (s *HandoverSuite) TestUnknownReservation() {
	_, err := s.svc.VerifyAndComplete(s.ctx, domain.NewReservationID(), "482913", "staff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRandomOTPIsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := RandomOTP()
		if err != nil {
			t.Fatal(err)
		}
		if !wellFormed(otp) {
			t.Fatalf("malformed otp %q", otp)
		}
	}
}

func TestVerifyOTPRejectsMalformed(t *testing.T) {
	hash, err := hashOTP("482913", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	for _, candidate := range []string{"", "48291", "4829134", "48291a"} {
		if err := verifyOTP(candidate, hash); !dErrors.HasCode(err, dErrors.CodeInvalidOTP) {
			t.Fatalf("candidate %q: got %v", candidate, err)
		}
	}
	if err := verifyOTP("482913", hash); err != nil {
		t.Fatal(err)
	}
}
