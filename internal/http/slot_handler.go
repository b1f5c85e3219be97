package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/slot-booking/internal/application"
	"github.com/example/slot-booking/internal/recurrence"
)

type slotService interface {
	ListSlots(ctx context.Context, date string) ([]application.SlotView, error)
	GenerateSlots(ctx context.Context, params application.GenerateSlotsParams) (int, error)
	GenerateSlotsRange(ctx context.Context, params application.GenerateSlotsRangeParams) (map[string]int, error)
}

type SlotHandler struct {
	service   slotService
	responder responder
	logger    *slog.Logger
}

func NewSlotHandler(service slotService, logger *slog.Logger) *SlotHandler {
	base := defaultLogger(logger)
	return &SlotHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SlotHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SlotHandler", operation, attrs...)
}

// List returns the slots of the date given in the query string with their occupancy.
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	logger := h.log(r.Context(), "List", "date", date)

	views, err := h.service.ListSlots(r.Context(), date)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to list slots", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSlotsResponse{Date: date, Slots: toSlotDTOs(views)})
}

// Generate creates the daily grid for one date or for every matching day of a range.
func (h *SlotHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req generateSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Generate", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode slot generation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if strings.TrimSpace(req.From) == "" && strings.TrimSpace(req.To) == "" {
		logger := h.log(r.Context(), "Generate", "principal_id", principal.UserID, "date", req.Date)
		created, err := h.service.GenerateSlots(r.Context(), application.GenerateSlotsParams{
			Principal: principal,
			Date:      req.Date,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "slot generation failed", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}

		logger.InfoContext(r.Context(), "slots generated", "created", created)
		h.responder.writeJSON(r.Context(), w, http.StatusOK, generateSlotsResponse{
			Created: map[string]int{req.Date: created},
			Total:   created,
		})
		return
	}

	logger := h.log(r.Context(), "Generate", "principal_id", principal.UserID, "from", req.From, "to", req.To)

	weekdays, err := parseWeekdays(req.Weekdays)
	if err != nil {
		logger.ErrorContext(r.Context(), "invalid weekday filter", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	created, err := h.service.GenerateSlotsRange(r.Context(), application.GenerateSlotsRangeParams{
		Principal: principal,
		From:      req.From,
		To:        req.To,
		Weekdays:  weekdays,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "slot range generation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	total := 0
	for _, n := range created {
		total += n
	}
	logger.InfoContext(r.Context(), "slot range generated", "dates", len(created), "created", total)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, generateSlotsResponse{Created: created, Total: total})
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, err := recurrence.ParseWeekday(name)
		if err != nil {
			return nil, &application.ValidationError{FieldErrors: map[string]string{
				"weekdays": "unknown weekday: " + name,
			}}
		}
		out = append(out, day)
	}
	return out, nil
}

type generateSlotsRequest struct {
	Date     string   `json:"date"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Weekdays []string `json:"weekdays"`
}

type generateSlotsResponse struct {
	Created map[string]int `json:"created"`
	Total   int            `json:"total"`
}

type listSlotsResponse struct {
	Date  string    `json:"date"`
	Slots []slotDTO `json:"slots"`
}

type slotDTO struct {
	ID            string           `json:"id"`
	Date          string           `json:"date"`
	StartTime     string           `json:"start_time"`
	ReservedCount int              `json:"reserved_count"`
	MaxCapacity   int              `json:"max_capacity"`
	IsFull        bool             `json:"is_full"`
	Reservations  []reservationDTO `json:"reservations"`
}

func toSlotDTOs(views []application.SlotView) []slotDTO {
	out := make([]slotDTO, 0, len(views))
	for _, view := range views {
		reservations := make([]reservationDTO, 0, len(view.Reservations))
		for _, res := range view.Reservations {
			reservations = append(reservations, toReservationDTO(res, view.Slot.StartTime))
		}
		out = append(out, slotDTO{
			ID:            view.Slot.ID,
			Date:          view.Slot.Date,
			StartTime:     view.Slot.StartTime,
			ReservedCount: view.ReservedCount,
			MaxCapacity:   view.MaxCapacity,
			IsFull:        view.IsFull,
			Reservations:  reservations,
		})
	}
	return out
}
