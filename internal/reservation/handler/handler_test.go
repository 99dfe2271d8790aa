package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"petregistry/internal/reservation/handler/mocks"
	"petregistry/internal/reservation/models"
	"petregistry/internal/reservation/service"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/reservation-mocks.go -package=mocks Service
type ReservationHandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	router chi.Router
	actor  string
	role   string
	res    *models.Reservation
}

func TestReservationHandlerSuite(t *testing.T) {
	suite.Run(t, new(ReservationHandlerSuite))
}

func (s *ReservationHandlerSuite) SetupTest() {
	s.svc = mocks.NewMockService(gomock.NewController(s.T()))
	s.actor, s.role = "cust-1", auth.RoleCustomer

	h := New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithActor(req.Context(), s.actor, s.role)))
		})
	})
	h.Register(r)
	s.router = r

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.res = models.NewReservation("RAB12345", "DOG12345", "", "cust-1", time.Hour, now)
}

func (s *ReservationHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func (s *ReservationHandlerSuite) TestCustomerCreatesForSelf() {
	s.svc.EXPECT().
		Create(gomock.Any(), service.CreateRequest{PetCode: "DOG12345", RequesterID: "cust-1"}).
		Return(s.res, nil)

	rec := s.do(http.MethodPost, "/reservations", `{"pet_code":"DOG12345"}`)
	s.Equal(http.StatusCreated, rec.Code)

	var body ReservationResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("RAB12345", body.Code)
	s.Equal("pending", body.Status)
	s.NotNil(body.ExpiresAt)
	s.Len(body.Timeline, 1)
}

func (s *ReservationHandlerSuite) TestCustomerCannotReserveForOthers() {
	rec := s.do(http.MethodPost, "/reservations", `{"pet_code":"DOG12345","requester_id":"cust-2"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *ReservationHandlerSuite) TestStaffReservesOnBehalf() {
	s.actor, s.role = "staff-1", auth.RoleStaff
	s.svc.EXPECT().
		Create(gomock.Any(), service.CreateRequest{PetCode: "DOG12345", RequesterID: "cust-2"}).
		Return(s.res, nil)

	rec := s.do(http.MethodPost, "/reservations", `{"pet_code":"DOG12345","requester_id":"cust-2"}`)
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *ReservationHandlerSuite) TestCreateConflict() {
	s.svc.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "pet already has an active reservation"))

	rec := s.do(http.MethodPost, "/reservations", `{"pet_code":"DOG12345"}`)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ReservationHandlerSuite) TestCustomerListIsScoped() {
	s.svc.EXPECT().
		List(gomock.Any(), models.Filter{RequesterID: "cust-1", Status: models.StatusPending, Limit: models.DefaultListLimit}).
		Return([]*models.Reservation{s.res}, 1, nil)

	rec := s.do(http.MethodGet, "/reservations?requester_id=cust-9&status=pending", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"total":1`)
}

func (s *ReservationHandlerSuite) TestListRejectsBadStatus() {
	rec := s.do(http.MethodGet, "/reservations?status=shipped", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ReservationHandlerSuite) TestGetHidesOtherCustomersReservation() {
	s.actor = "cust-2"
	s.svc.EXPECT().Get(gomock.Any(), s.res.ID).Return(s.res, nil)

	rec := s.do(http.MethodGet, "/reservations/"+s.res.ID.String(), "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ReservationHandlerSuite) TestGetByCode() {
	s.svc.EXPECT().GetByCode(gomock.Any(), domain.ReservationCode("RAB12345")).Return(s.res, nil)

	rec := s.do(http.MethodGet, "/reservations/by-code/rab12345", "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ReservationHandlerSuite) TestGetMalformedID() {
	rec := s.do(http.MethodGet, "/reservations/not-a-uuid", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ReservationHandlerSuite) TestCustomerCancelsOwn() {
	cancelled := s.res.Clone()
	cancelled.Status = models.StatusCancelled
	s.svc.EXPECT().Get(gomock.Any(), s.res.ID).Return(s.res, nil)
	s.svc.EXPECT().Transition(gomock.Any(), s.res.ID, models.StatusCancelled, "cust-1", "changed mind").Return(cancelled, nil)

	rec := s.do(http.MethodPost, "/reservations/"+s.res.ID.String()+"/transitions", `{"status":"cancelled","note":"changed mind"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"cancelled"`)
}

func (s *ReservationHandlerSuite) TestCustomerCannotApprove() {
	rec := s.do(http.MethodPost, "/reservations/"+s.res.ID.String()+"/transitions", `{"status":"approved"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *ReservationHandlerSuite) TestStaffCannotApprove() {
	s.actor, s.role = "staff-1", auth.RoleStaff
	rec := s.do(http.MethodPost, "/reservations/"+s.res.ID.String()+"/transitions", `{"status":"approved"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *ReservationHandlerSuite) TestManagerInvalidTransition() {
	s.actor, s.role = "mgr-1", auth.RoleManager
	s.svc.EXPECT().Transition(gomock.Any(), s.res.ID, models.StatusPaid, "mgr-1", "").
		Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot move reservation from pending to paid"))

	rec := s.do(http.MethodPost, "/reservations/"+s.res.ID.String()+"/transitions", `{"status":"paid"}`)
	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), "invalid_transition")
}

func (s *ReservationHandlerSuite) TestExpiredMapsToGone() {
	s.actor, s.role = "mgr-1", auth.RoleManager
	s.svc.EXPECT().Transition(gomock.Any(), s.res.ID, models.StatusApproved, "mgr-1", "").
		Return(nil, dErrors.New(dErrors.CodeExpired, "reservation expired while pending"))

	rec := s.do(http.MethodPost, "/reservations/"+s.res.ID.String()+"/transitions", `{"status":"approved"}`)
	s.Equal(http.StatusGone, rec.Code)
}
