package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"petregistry/internal/handover"
	reghandler "petregistry/internal/registry/handler"
	reshandler "petregistry/internal/reservation/handler"
	"petregistry/internal/reservation/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/httputil"
	"petregistry/pkg/platform/middleware/auth"
	"petregistry/pkg/requestcontext"
)

// Service defines the handover operations the HTTP layer needs.
type Service interface {
	ScheduleHandover(ctx context.Context, id domain.ReservationID, sched handover.Schedule, actor string) (*models.Reservation, error)
	RegenerateOTP(ctx context.Context, id domain.ReservationID, actor string) (*models.Reservation, error)
	VerifyAndComplete(ctx context.Context, id domain.ReservationID, otp, actor string) (*handover.Completion, error)
}

type Handler struct {
	handovers Service
	logger    *slog.Logger
}

func New(handovers Service, logger *slog.Logger) *Handler {
	return &Handler{handovers: handovers, logger: logger}
}

// Register mounts the counter-side handover routes. Passcodes reach the
// customer through notification, never through these responses.
func (h *Handler) Register(r chi.Router) {
	r.Route("/handovers/{id}", func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, auth.RoleStaff, auth.RoleManager, auth.RoleSystem))
		r.Post("/schedule", h.HandleSchedule)
		r.Post("/otp", h.HandleRegenerateOTP)
		r.Post("/verify", h.HandleVerify)
	})
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Location    string    `json:"location" validate:"max=200"`
}

type VerifyRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

type CompletionResponse struct {
	Reservation *reshandler.ReservationResponse   `json:"reservation"`
	Pet         *reghandler.EntryResponse         `json:"pet"`
	Record      *reghandler.HistoryRecordResponse `json:"record,omitempty"`
}

func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid reservation id", err)
		return
	}
	var req ScheduleRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid schedule request", err)
		return
	}
	res, err := h.handovers.ScheduleHandover(ctx, id, handover.Schedule{At: req.ScheduledAt, Location: req.Location}, requestcontext.ActorID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to schedule handover", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reshandler.FromReservation(res))
}

func (h *Handler) HandleRegenerateOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid reservation id", err)
		return
	}
	res, err := h.handovers.RegenerateOTP(ctx, id, requestcontext.ActorID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to regenerate otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, reshandler.FromReservation(res))
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid reservation id", err)
		return
	}
	var req VerifyRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, "invalid verify request", err)
		return
	}
	done, err := h.handovers.VerifyAndComplete(ctx, id, req.OTP, requestcontext.ActorID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to complete handover", err)
		return
	}
	resp := &CompletionResponse{Reservation: reshandler.FromReservation(done.Reservation)}
	if done.Transfer != nil {
		resp.Pet = reghandler.FromEntry(done.Transfer.Entry)
		if done.Transfer.Record != nil {
			rec := reghandler.FromHistoryRecord(*done.Transfer.Record)
			resp.Record = &rec
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogAndWriteError(ctx, h.logger, w, msg, err)
}
