package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/slot-booking/internal/events"
	"github.com/example/slot-booking/internal/persistence"
	"github.com/example/slot-booking/internal/scheduler"
)

// EventPublisher delivers reservation events after they are committed.
type EventPublisher interface {
	Publish(ctx context.Context, event events.ReservationEvent) error
}

// ReservationService books, moves and cancels reservations against slot capacity.
type ReservationService struct {
	store       StateStore
	publisher   EventPublisher
	policy      ReservationPolicy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewReservationService constructs a reservation service with the provided dependencies.
func NewReservationService(store StateStore, publisher EventPublisher, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithLogger(store, publisher, idGenerator, now, nil)
}

// NewReservationServiceWithLogger constructs a reservation service with a specified logger.
func NewReservationServiceWithLogger(store StateStore, publisher EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReservationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{
		store:       store,
		publisher:   publisher,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// WithPolicy sets the optional booking rules and returns the service.
func (s *ReservationService) WithPolicy(policy ReservationPolicy) *ReservationService {
	s.policy = policy
	return s
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// Book reserves one unit of the slot for the user's company and returns the
// reservation together with its slot.
func (s *ReservationService) Book(ctx context.Context, params BookParams) (booking ReservationWithSlot, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Book",
		"user_id", params.UserID,
		"slot_id", params.SlotID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to book slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", booking.Reservation.ID, "company", booking.Reservation.Company).InfoContext(ctx, "slot booked")
	}()

	var slot persistence.Slot
	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		ui, ok := findUserByID(doc, params.UserID)
		if !ok {
			return ErrNotFound
		}
		si, ok := findSlot(doc, params.SlotID)
		if !ok {
			return ErrNotFound
		}
		slot = doc.Slots[si]

		if reservedCount(doc, slot.ID) >= scheduler.MaxCapacity {
			return ErrSlotFull
		}

		company := normalizeCompany(doc.Users[ui].Company)
		if s.policy.OneBookingPerCompanyPerDay && companyHasReservationOn(doc, company, slot.Date, "") {
			return ErrCompanyDailyLimit
		}

		now := s.now()
		rec := persistence.Reservation{
			ID:        s.idGenerator(),
			SlotID:    slot.ID,
			UserID:    doc.Users[ui].ID,
			Company:   company,
			Date:      slot.Date,
			CreatedAt: now,
			UpdatedAt: now,
		}
		doc.Reservations = append(doc.Reservations, rec)
		booking = ReservationWithSlot{Reservation: toReservation(rec), Slot: toSlot(slot)}
		return nil
	})
	if err != nil {
		booking = ReservationWithSlot{}
		err = mapStoreError(err)
		return
	}

	s.publish(ctx, logger, reservationEvent(events.TypeBooked, booking.Reservation, slot.StartTime, params.UserID, "", booking.Reservation.UpdatedAt))
	return
}

// Move relocates a reservation to another slot, keeping its ID. Moving to the
// slot it already occupies succeeds without writing.
func (s *ReservationService) Move(ctx context.Context, params MoveParams) (booking ReservationWithSlot, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Move",
		"actor_user_id", params.ActorUserID,
		"reservation_id", params.ReservationID,
		"new_slot_id", params.NewSlotID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to move reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation moved")
	}()

	var (
		previousSlotID string
		unchanged      bool
	)
	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		ri, err := authorizeReservation(doc, params.ActorUserID, params.ReservationID)
		if err != nil {
			return err
		}

		rec := &doc.Reservations[ri]
		if rec.SlotID == params.NewSlotID {
			booking.Reservation = toReservation(*rec)
			if si, ok := findSlot(doc, rec.SlotID); ok {
				booking.Slot = toSlot(doc.Slots[si])
			}
			unchanged = true
			return persistence.ErrSkipWrite
		}

		si, ok := findSlot(doc, params.NewSlotID)
		if !ok {
			return ErrNotFound
		}
		target := doc.Slots[si]

		if reservedCount(doc, target.ID) >= scheduler.MaxCapacity {
			return ErrSlotFull
		}
		if s.policy.OneBookingPerCompanyPerDay && companyHasReservationOn(doc, normalizeCompany(rec.Company), target.Date, rec.ID) {
			return ErrCompanyDailyLimit
		}

		previousSlotID = rec.SlotID
		rec.SlotID = target.ID
		rec.Date = target.Date
		rec.UpdatedAt = s.now()
		booking = ReservationWithSlot{Reservation: toReservation(*rec), Slot: toSlot(target)}
		return nil
	})
	if err != nil {
		booking = ReservationWithSlot{}
		err = mapStoreError(err)
		return
	}
	if unchanged {
		return
	}

	event := reservationEvent(events.TypeMoved, booking.Reservation, booking.Slot.StartTime, params.ActorUserID, previousSlotID, booking.Reservation.UpdatedAt)
	s.publish(ctx, logger, event)
	return
}

// Cancel removes a reservation, freeing its unit of capacity.
func (s *ReservationService) Cancel(ctx context.Context, params CancelParams) (err error) {
	if s == nil {
		return fmt.Errorf("ReservationService is nil")
	}

	logger := s.loggerWith(ctx, "Cancel",
		"actor_user_id", params.ActorUserID,
		"reservation_id", params.ReservationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation cancelled")
	}()

	var (
		removed   Reservation
		startTime string
	)
	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		ri, err := authorizeReservation(doc, params.ActorUserID, params.ReservationID)
		if err != nil {
			return err
		}

		removed = toReservation(doc.Reservations[ri])
		if si, ok := findSlot(doc, removed.SlotID); ok {
			startTime = doc.Slots[si].StartTime
		}
		doc.Reservations = append(doc.Reservations[:ri], doc.Reservations[ri+1:]...)
		return nil
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.publish(ctx, logger, reservationEvent(events.TypeCancelled, removed, startTime, params.ActorUserID, "", s.now()))
	return nil
}

// authorizeReservation resolves the actor and the reservation and checks that
// the actor belongs to the reservation's company or is an administrator.
func authorizeReservation(doc *persistence.Document, actorID, reservationID string) (int, error) {
	ai, ok := findUserByID(doc, actorID)
	if !ok {
		return -1, ErrNotFound
	}
	actor := PrincipalFor(toUser(doc.Users[ai]))

	ri, ok := findReservation(doc, reservationID)
	if !ok {
		return -1, ErrNotFound
	}

	if !actor.IsAdmin() && normalizeCompany(actor.Company) != normalizeCompany(doc.Reservations[ri].Company) {
		return -1, ErrUnauthorized
	}
	return ri, nil
}

// ListForCompany returns the company's reservations joined with their slots,
// ordered by date then start time.
func (s *ReservationService) ListForCompany(ctx context.Context, company string) ([]ReservationWithSlot, error) {
	if s == nil {
		return nil, fmt.Errorf("ReservationService is nil")
	}

	company = normalizeCompany(company)
	if company == "" {
		return nil, fieldError("company", "company is required")
	}

	var out []ReservationWithSlot
	err := s.store.View(ctx, func(doc persistence.Document) error {
		slots := make(map[string]persistence.Slot, len(doc.Slots))
		for _, slot := range doc.Slots {
			slots[slot.ID] = slot
		}

		for _, rec := range doc.Reservations {
			if normalizeCompany(rec.Company) != company {
				continue
			}
			slot, ok := slots[rec.SlotID]
			if !ok {
				return fmt.Errorf("%w: reservation %s references missing slot %s", ErrDataIntegrity, rec.ID, rec.SlotID)
			}
			out = append(out, ReservationWithSlot{Reservation: toReservation(rec), Slot: toSlot(slot)})
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return scheduler.Less(out[i].Slot.Date, out[i].Slot.StartTime, out[j].Slot.Date, out[j].Slot.StartTime)
	})
	return out, nil
}

// AuditCapacity scans the stored state for over-booked slots and reservations
// that disagree with their slot.
func (s *ReservationService) AuditCapacity(ctx context.Context) (violations []CapacityViolation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AuditCapacity")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "capacity audit failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if len(violations) > 0 {
			logger.With("violations", len(violations)).WarnContext(ctx, "capacity audit found violations")
			return
		}
		logger.InfoContext(ctx, "capacity audit clean")
	}()

	err = s.store.View(ctx, func(doc persistence.Document) error {
		slots := make(map[string]persistence.Slot, len(doc.Slots))
		for _, slot := range doc.Slots {
			slots[slot.ID] = slot
		}

		slotIDs := make([]string, 0, len(doc.Reservations))
		for _, rec := range doc.Reservations {
			slotIDs = append(slotIDs, rec.SlotID)

			slot, ok := slots[rec.SlotID]
			if !ok {
				violations = append(violations, CapacityViolation{
					Kind:          ViolationMissingSlot,
					SlotID:        rec.SlotID,
					ReservationID: rec.ID,
					Detail:        "reservation references a slot that does not exist",
				})
				continue
			}
			if rec.Date != slot.Date {
				violations = append(violations, CapacityViolation{
					Kind:          ViolationDateMismatch,
					SlotID:        rec.SlotID,
					ReservationID: rec.ID,
					Detail:        fmt.Sprintf("reservation date %s differs from slot date %s", rec.Date, slot.Date),
				})
			}
		}

		occupancy := scheduler.CountBySlot(slotIDs)
		for _, id := range occupancy.Overbooked() {
			violations = append(violations, CapacityViolation{
				Kind:   ViolationOverCapacity,
				SlotID: id,
				Detail: fmt.Sprintf("%d reservations exceed capacity %d", occupancy.Reserved(id), scheduler.MaxCapacity),
			})
		}
		return nil
	})
	if err != nil {
		violations = nil
		err = mapStoreError(err)
	}
	return
}

func (s *ReservationService) publish(ctx context.Context, logger *slog.Logger, event events.ReservationEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish reservation event",
			"event_type", string(event.Type),
			"error", err,
		)
	}
}

func reservationEvent(kind events.Type, r Reservation, startTime, actorID, previousSlotID string, at time.Time) events.ReservationEvent {
	return events.ReservationEvent{
		Type:           kind,
		ReservationID:  r.ID,
		SlotID:         r.SlotID,
		PreviousSlotID: previousSlotID,
		UserID:         r.UserID,
		ActorUserID:    actorID,
		Company:        r.Company,
		Date:           r.Date,
		StartTime:      startTime,
		OccurredAt:     at,
	}
}
