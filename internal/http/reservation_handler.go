package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/slot-booking/internal/application"
)

type reservationService interface {
	Book(ctx context.Context, params application.BookParams) (application.ReservationWithSlot, error)
	Move(ctx context.Context, params application.MoveParams) (application.ReservationWithSlot, error)
	Cancel(ctx context.Context, params application.CancelParams) error
	ListForCompany(ctx context.Context, company string) ([]application.ReservationWithSlot, error)
}

type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

// List returns the reservations held by the caller's company.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "company", principal.Company)

	items, err := h.service.ListForCompany(r.Context(), principal.Company)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to list reservations", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]reservationDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toReservationDTO(item.Reservation, item.Slot.StartTime))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listReservationsResponse{Reservations: out})
}

// Create books one seat of a slot for the caller's company.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	req, ok := h.decodeSlotRequest(w, r, "Create", principal)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "slot_id", req.SlotID)

	booking, err := h.service.Book(r.Context(), application.BookParams{
		UserID: principal.UserID,
		SlotID: req.SlotID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "booking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("reservation_id", booking.Reservation.ID).InfoContext(r.Context(), "reservation created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, reservationResponse{Reservation: toReservationDTO(booking.Reservation, booking.Slot.StartTime)})
}

// Update moves the reservation named in the path to another slot.
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID, ok := ReservationIDFromContext(r.Context())
	if !ok || strings.TrimSpace(reservationID) == "" {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing reservation id for move")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservationID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	req, ok := h.decodeSlotRequest(w, r, "Update", principal)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "reservation_id", reservationID, "slot_id", req.SlotID)

	booking, err := h.service.Move(r.Context(), application.MoveParams{
		ActorUserID:   principal.UserID,
		ReservationID: reservationID,
		NewSlotID:     req.SlotID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "move failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation moved")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(booking.Reservation, booking.Slot.StartTime)})
}

// Delete cancels the reservation named in the path.
func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID, ok := ReservationIDFromContext(r.Context())
	if !ok || strings.TrimSpace(reservationID) == "" {
		h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing reservation id for cancel")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservationID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "reservation_id", reservationID)

	if err := h.service.Cancel(r.Context(), application.CancelParams{
		ActorUserID:   principal.UserID,
		ReservationID: reservationID,
	}); err != nil {
		logger.ErrorContext(r.Context(), "cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ReservationHandler) decodeSlotRequest(w http.ResponseWriter, r *http.Request, operation string, principal application.Principal) (slotRequest, bool) {
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), operation, "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return slotRequest{}, false
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	if req.SlotID == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"slot_id": "slot_id is required"},
		})
		return slotRequest{}, false
	}
	return req, true
}

type slotRequest struct {
	SlotID string `json:"slot_id"`
}

type reservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
}

type listReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
}

type reservationDTO struct {
	ID        string `json:"id"`
	SlotID    string `json:"slot_id"`
	UserID    string `json:"user_id"`
	Company   string `json:"company"`
	Date      string `json:"date"`
	StartTime string `json:"start_time,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toReservationDTO(res application.Reservation, startTime string) reservationDTO {
	return reservationDTO{
		ID:        res.ID,
		SlotID:    res.SlotID,
		UserID:    res.UserID,
		Company:   res.Company,
		Date:      res.Date,
		StartTime: startTime,
		CreatedAt: res.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: res.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
