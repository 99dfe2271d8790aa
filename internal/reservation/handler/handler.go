package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"petregistry/internal/reservation/models"
	"petregistry/internal/reservation/service"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/httputil"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/requestcontext"
)

// Service defines the reservation operations the HTTP layer needs.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Reservation, error)
	Transition(ctx context.Context, id domain.ReservationID, target models.Status, actor, note string) (*models.Reservation, error)
	Get(ctx context.Context, id domain.ReservationID) (*models.Reservation, error)
	GetByCode(ctx context.Context, code domain.ReservationCode) (*models.Reservation, error)
	List(ctx context.Context, f models.Filter) ([]*models.Reservation, int, error)
}

type Handler struct {
	reservations Service
	logger       *slog.Logger
}

func New(reservations Service, logger *slog.Logger) *Handler {
	return &Handler{reservations: reservations, logger: logger}
}

// Register mounts the reservation routes. Customers act on their own
// reservations only.
func (h *Handler) Register(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Get("/by-code/{code}", h.HandleGetByCode)
		r.Post("/{id}/transitions", h.HandleTransition)
	})
}

type CreateRequest struct {
	PetCode     string `json:"pet_code" validate:"required"`
	ItemID      string `json:"item_id" validate:"max=64"`
	RequesterID string `json:"requester_id" validate:"max=64"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

type TimelineEntryResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Note   string    `json:"note,omitempty"`
}

type ReservationResponse struct {
	ID               string                  `json:"id"`
	Code             string                  `json:"code"`
	PetCode          string                  `json:"pet_code"`
	ItemID           string                  `json:"item_id,omitempty"`
	RequesterID      string                  `json:"requester_id"`
	Status           string                  `json:"status"`
	ExpiresAt        *time.Time              `json:"expires_at,omitempty"`
	ScheduledAt      *time.Time              `json:"scheduled_at,omitempty"`
	HandoverLocation string                  `json:"handover_location,omitempty"`
	Timeline         []TimelineEntryResponse `json:"timeline"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

type ListResponse struct {
	Reservations []*ReservationResponse `json:"reservations"`
	Total        int                    `json:"total"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
}

func FromReservation(r *models.Reservation) *ReservationResponse {
	resp := &ReservationResponse{
		ID:               r.ID.String(),
		Code:             string(r.Code),
		PetCode:          string(r.PetCode),
		ItemID:           r.ItemID,
		RequesterID:      string(r.RequesterID),
		Status:           string(r.Status),
		ExpiresAt:        r.ExpiresAt,
		ScheduledAt:      r.ScheduledAt,
		HandoverLocation: r.HandoverLocation,
		Timeline:         make([]TimelineEntryResponse, 0, len(r.Timeline)),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	for _, e := range r.Timeline {
		resp.Timeline = append(resp.Timeline, TimelineEntryResponse{
			Status: string(e.Status), At: e.At, Actor: e.Actor, Note: e.Note,
		})
	}
	return resp
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid reservation request", err)
		return
	}
	pet, err := domain.ParsePetCode(req.PetCode)
	if err != nil {
		h.writeError(ctx, w, "invalid reservation request", err)
		return
	}
	requester := requestcontext.ActorID(ctx)
	if req.RequesterID != "" && req.RequesterID != requester {
		if isCustomer(ctx) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "customers may only reserve for themselves"))
			return
		}
		requester = req.RequesterID
	}
	owner, err := domain.ParseOwnerID(requester)
	if err != nil {
		h.writeError(ctx, w, "invalid reservation request", err)
		return
	}

	res, err := h.reservations.Create(ctx, service.CreateRequest{PetCode: pet, ItemID: req.ItemID, RequesterID: owner})
	if err != nil {
		h.writeError(ctx, w, "failed to create reservation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromReservation(res))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, "invalid reservation filter", err)
		return
	}
	if isCustomer(ctx) {
		f.RequesterID = domain.OwnerID(requestcontext.ActorID(ctx))
	}
	f = f.Normalize()
	list, total, err := h.reservations.List(ctx, f)
	if err != nil {
		h.writeError(ctx, w, "failed to list reservations", err)
		return
	}
	resp := &ListResponse{Reservations: make([]*ReservationResponse, 0, len(list)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, res := range list {
		resp.Reservations = append(resp.Reservations, FromReservation(res))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid reservation id", err)
		return
	}
	res, err := h.reservations.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, "failed to load reservation", err)
		return
	}
	h.writeOwned(ctx, w, res)
}

func (h *Handler) HandleGetByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := domain.ParseReservationCode(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "invalid reservation code", err)
		return
	}
	res, err := h.reservations.GetByCode(ctx, code)
	if err != nil {
		h.writeError(ctx, w, "failed to load reservation", err)
		return
	}
	h.writeOwned(ctx, w, res)
}

// HandleTransition applies a status change. Customers may only cancel
// their own reservations; review decisions need a manager.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid reservation id", err)
		return
	}
	var req TransitionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid transition request", err)
		return
	}
	target, err := models.ParseStatus(req.Status)
	if err != nil {
		h.writeError(ctx, w, "invalid transition request", err)
		return
	}
	if err := h.authorizeTransition(ctx, id, target); err != nil {
		h.writeError(ctx, w, "transition not permitted", err)
		return
	}
	res, err := h.reservations.Transition(ctx, id, target, requestcontext.ActorID(ctx), req.Note)
	if err != nil {
		h.writeError(ctx, w, "failed to transition reservation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReservation(res))
}

func (h *Handler) authorizeTransition(ctx context.Context, id domain.ReservationID, target models.Status) error {
	role := requestcontext.ActorRole(ctx)
	switch role {
	case auth.RoleManager, auth.RoleSystem:
		return nil
	case auth.RoleStaff:
		if target == models.StatusApproved || target == models.StatusRejected {
			return dErrors.New(dErrors.CodeForbidden, "review decisions require a manager")
		}
		return nil
	case auth.RoleCustomer:
		if target != models.StatusCancelled {
			return dErrors.New(dErrors.CodeForbidden, "customers may only cancel")
		}
		res, err := h.reservations.Get(ctx, id)
		if err != nil {
			return err
		}
		if string(res.RequesterID) != requestcontext.ActorID(ctx) {
			return dErrors.New(dErrors.CodeForbidden, "not your reservation")
		}
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "role not permitted")
}

func (h *Handler) writeOwned(ctx context.Context, w http.ResponseWriter, res *models.Reservation) {
	if isCustomer(ctx) && string(res.RequesterID) != requestcontext.ActorID(ctx) {
		// Hide existence from other customers.
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "reservation not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReservation(res))
}

func parseFilter(q url.Values) (models.Filter, error) {
	var f models.Filter
	if v := q.Get("requester_id"); v != "" {
		f.RequesterID = domain.OwnerID(v)
	}
	if v := q.Get("pet_code"); v != "" {
		code, err := domain.ParsePetCode(v)
		if err != nil {
			return f, err
		}
		f.PetCode = code
	}
	if v := q.Get("status"); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}

func isCustomer(ctx context.Context) bool {
	return requestcontext.ActorRole(ctx) == auth.RoleCustomer
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogAndWriteError(ctx, h.logger, w, msg, err)
}
