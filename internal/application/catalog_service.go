package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/slot-booking/internal/persistence"
	"github.com/example/slot-booking/internal/recurrence"
	"github.com/example/slot-booking/internal/scheduler"
)

// CatalogService generates and lists bookable slots.
type CatalogService struct {
	store       StateStore
	grid        scheduler.Grid
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCatalogService constructs a catalog service over the default daily grid.
func NewCatalogService(store StateStore, idGenerator func() string, now func() time.Time) *CatalogService {
	return NewCatalogServiceWithLogger(store, idGenerator, now, nil)
}

// NewCatalogServiceWithLogger constructs a catalog service with a specified logger.
func NewCatalogServiceWithLogger(store StateStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CatalogService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogService{
		store:       store,
		grid:        scheduler.DefaultGrid,
		engine:      recurrence.NewEngine(nil),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *CatalogService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CatalogService", operation, attrs...)
}

// GenerateSlots creates the missing grid slots for one date and returns how
// many were inserted. Existing slots are left untouched.
func (s *CatalogService) GenerateSlots(ctx context.Context, params GenerateSlotsParams) (created int, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GenerateSlots",
		"principal_id", params.Principal.UserID,
		"date", params.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("created", created).InfoContext(ctx, "slots generated")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if !scheduler.ValidDate(params.Date) {
		err = fieldError("date", "date must be YYYY-MM-DD")
		return
	}

	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		created = s.fillGrid(doc, params.Date)
		if created == 0 {
			return persistence.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		created = 0
		err = mapStoreError(err)
	}
	return
}

// GenerateSlotsRange fills the grid for every selected day between From and To
// inclusive in a single transaction. The result maps each date to the number of
// slots inserted for it.
func (s *CatalogService) GenerateSlotsRange(ctx context.Context, params GenerateSlotsRangeParams) (created map[string]int, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GenerateSlotsRange",
		"principal_id", params.Principal.UserID,
		"from", params.From,
		"to", params.To,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate slot range", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("dates", len(created)).InfoContext(ctx, "slot range generated")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	from, fromErr := s.engine.ParseDate(params.From)
	if fromErr != nil {
		vErr.add("from", "from must be YYYY-MM-DD")
	}
	to, toErr := s.engine.ParseDate(params.To)
	if toErr != nil {
		vErr.add("to", "to must be YYYY-MM-DD")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	dates, expandErr := s.engine.ExpandDates(recurrence.Range{From: from, To: to, Weekdays: params.Weekdays})
	switch {
	case errors.Is(expandErr, recurrence.ErrInvalidWindow):
		err = fieldError("to", "to must not be before from")
		return
	case errors.Is(expandErr, recurrence.ErrRangeTooLong):
		err = fieldError("to", fmt.Sprintf("range must not exceed %d days", recurrence.MaxRangeDays))
		return
	case expandErr != nil:
		err = expandErr
		return
	}

	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		created = make(map[string]int, len(dates))
		total := 0
		for _, date := range dates {
			n := s.fillGrid(doc, date)
			created[date] = n
			total += n
		}
		if total == 0 {
			return persistence.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		created = nil
		err = mapStoreError(err)
	}
	return
}

// fillGrid appends the grid slots missing on date and returns how many were added.
func (s *CatalogService) fillGrid(doc *persistence.Document, date string) int {
	now := s.now()
	added := 0
	for _, start := range s.grid.StartTimes() {
		if slotExists(doc, date, start) {
			continue
		}
		doc.Slots = append(doc.Slots, persistence.Slot{
			ID:        s.idGenerator(),
			Date:      date,
			StartTime: start,
			CreatedAt: now,
		})
		added++
	}
	return added
}

// ListSlots returns every slot on date with its reservations, ordered by start time.
func (s *CatalogService) ListSlots(ctx context.Context, date string) ([]SlotView, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if !scheduler.ValidDate(date) {
		return nil, fieldError("date", "date must be YYYY-MM-DD")
	}

	var views []SlotView
	err := s.store.View(ctx, func(doc persistence.Document) error {
		bySlot := make(map[string][]Reservation)
		for _, rec := range doc.Reservations {
			bySlot[rec.SlotID] = append(bySlot[rec.SlotID], toReservation(rec))
		}

		for _, rec := range doc.Slots {
			if rec.Date != date {
				continue
			}
			reservations := bySlot[rec.ID]
			sort.SliceStable(reservations, func(i, j int) bool {
				return reservations[i].CreatedAt.Before(reservations[j].CreatedAt)
			})
			views = append(views, SlotView{
				Slot:          toSlot(rec),
				Reservations:  reservations,
				ReservedCount: len(reservations),
				MaxCapacity:   scheduler.MaxCapacity,
				IsFull:        scheduler.IsFull(len(reservations)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Slot.StartTime < views[j].Slot.StartTime
	})
	return views, nil
}
