package application

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/example/slot-booking/internal/persistence"
)

// StateStore runs read-only and read-modify-write transactions over the booking
// document. *persistence.Database satisfies it.
type StateStore interface {
	View(ctx context.Context, fn func(doc persistence.Document) error) error
	Update(ctx context.Context, fn persistence.MutateFunc) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeCompany folds width and compatibility variants so "Ａ社" and "A社"
// name the same booking unit.
func normalizeCompany(company string) string {
	return strings.TrimSpace(norm.NFKC.String(company))
}

func findUserByID(doc *persistence.Document, id string) (int, bool) {
	for i := range doc.Users {
		if doc.Users[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func findUserByEmail(doc *persistence.Document, email string) (int, bool) {
	for i := range doc.Users {
		if normalizeEmail(doc.Users[i].Email) == email {
			return i, true
		}
	}
	return -1, false
}

func findSlot(doc *persistence.Document, id string) (int, bool) {
	for i := range doc.Slots {
		if doc.Slots[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func findReservation(doc *persistence.Document, id string) (int, bool) {
	for i := range doc.Reservations {
		if doc.Reservations[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func slotExists(doc *persistence.Document, date, start string) bool {
	for i := range doc.Slots {
		if doc.Slots[i].Date == date && doc.Slots[i].StartTime == start {
			return true
		}
	}
	return false
}

func reservedCount(doc *persistence.Document, slotID string) int {
	n := 0
	for i := range doc.Reservations {
		if doc.Reservations[i].SlotID == slotID {
			n++
		}
	}
	return n
}

// companyHasReservationOn reports whether company holds a reservation on date,
// ignoring the reservation with ID exceptID.
func companyHasReservationOn(doc *persistence.Document, company, date, exceptID string) bool {
	for i := range doc.Reservations {
		r := doc.Reservations[i]
		if r.ID == exceptID {
			continue
		}
		if r.Date == date && normalizeCompany(r.Company) == company {
			return true
		}
	}
	return false
}

func toUser(rec persistence.User) User {
	role, err := ParseRole(rec.Role)
	if err != nil {
		role = RoleMember
	}
	return User{
		ID:        rec.ID,
		Email:     rec.Email,
		Company:   rec.Company,
		Role:      role,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toCredentials(rec persistence.User) UserCredentials {
	return UserCredentials{User: toUser(rec), PasswordHash: rec.PasswordHash}
}

func toSlot(rec persistence.Slot) Slot {
	return Slot{ID: rec.ID, Date: rec.Date, StartTime: rec.StartTime, CreatedAt: rec.CreatedAt}
}

func toReservation(rec persistence.Reservation) Reservation {
	return Reservation{
		ID:        rec.ID,
		SlotID:    rec.SlotID,
		UserID:    rec.UserID,
		Company:   rec.Company,
		Date:      rec.Date,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
