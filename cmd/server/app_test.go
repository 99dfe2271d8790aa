package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	jwttoken "petregistry/internal/jwt_token"
	"petregistry/internal/platform/config"
	reghandler "petregistry/internal/registry/handler"
	reshandler "petregistry/internal/reservation/handler"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/testutil"
)

// AppSuite drives the fully wired router in memory mode. Metrics register on
// the default Prometheus registry, so the app is built once per binary.
type AppSuite struct {
	suite.Suite
	cfg    config.Config
	app    *app
	tokens *jwttoken.JWTService
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupSuite() {
	s.cfg = config.Default()
	a, err := build(context.Background(), &s.cfg, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	s.app = a
	s.tokens = jwttoken.NewJWTService(s.cfg.Auth.JWTSigningKey, s.cfg.Auth.Issuer, s.cfg.Auth.Audience)
}

func (s *AppSuite) TearDownSuite() {
	s.app.Close()
}

func (s *AppSuite) call(method, path, actor, role string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if actor != "" {
		token, err := s.tokens.GenerateActorToken(actor, role, time.Hour)
		s.Require().NoError(err)
		testutil.WithBearer(req, token)
	}
	return testutil.Do(s.app.Router, req)
}

func (s *AppSuite) TestHealthAndMetricsAreOpen() {
	s.Equal(http.StatusOK, s.call(http.MethodGet, "/healthz", "", "", nil).Code)
	s.Equal(http.StatusOK, s.call(http.MethodGet, "/metrics", "", "", nil).Code)
}

func (s *AppSuite) TestRegistryRequiresToken() {
	rr := s.call(http.MethodGet, "/registry/pets", "", "", nil)
	testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *AppSuite) TestAdminCodesRequireAdminToken() {
	rr := s.call(http.MethodPost, "/admin/codes", "staff-1", auth.RoleStaff, map[string]int{"count": 2})
	testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/codes", map[string]int{"count": 2})
	req.Header.Set("X-Admin-Token", s.cfg.Auth.AdminToken)
	resp := testutil.Decode[reghandler.GenerateCodesResponse](s.T(), testutil.Do(s.app.Router, req), http.StatusCreated)
	s.Len(resp.Codes, 2)
}

func (s *AppSuite) TestReservationToHandoverOverHTTP() {
	t := s.T()

	pet := testutil.Decode[reghandler.EntryResponse](t, s.call(http.MethodPost, "/registry/pets", "staff-1", auth.RoleStaff,
		map[string]any{"origin_source": "shop", "shop_item_id": "item-http-1", "name": "Biscuit"}), http.StatusCreated)
	s.Require().NotEmpty(pet.PetCode)

	res := testutil.Decode[reshandler.ReservationResponse](t, s.call(http.MethodPost, "/reservations/", "cust-1", auth.RoleCustomer,
		map[string]any{"pet_code": pet.PetCode}), http.StatusCreated)
	s.Equal("pending", res.Status)
	s.Equal("cust-1", res.RequesterID)

	path := "/reservations/" + res.ID + "/transitions"
	rr := s.call(http.MethodPost, path, "cust-1", auth.RoleCustomer, map[string]any{"status": "approved"})
	testutil.AssertError(t, rr, http.StatusForbidden, "forbidden")

	for _, status := range []string{"approved", "payment_pending", "paid"} {
		res = testutil.Decode[reshandler.ReservationResponse](t,
			s.call(http.MethodPost, path, "mgr-1", auth.RoleManager, map[string]any{"status": status}), http.StatusOK)
		s.Equal(status, res.Status)
	}

	res = testutil.Decode[reshandler.ReservationResponse](t, s.call(http.MethodPost, "/handovers/"+res.ID+"/schedule", "staff-1", auth.RoleStaff,
		map[string]any{"scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339), "location": "front desk"}), http.StatusOK)
	s.Equal("ready_for_handover", res.Status)
	s.Equal("front desk", res.HandoverLocation)

	rr = s.call(http.MethodPost, "/handovers/"+res.ID+"/verify", "cust-1", auth.RoleCustomer, map[string]any{"otp": "123456"})
	testutil.AssertError(t, rr, http.StatusForbidden, "forbidden")

	got := testutil.Decode[reghandler.EntryResponse](t, s.call(http.MethodGet, "/registry/pets/"+pet.PetCode, "cust-1", auth.RoleCustomer, nil), http.StatusOK)
	s.Equal("reserved", got.CurrentStatus)
}
