package persistence

import "time"

// User represents a company account stored in the booking document.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Company      string    `json:"company"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Slot represents a bookable half-hour window on a calendar day.
type Slot struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	StartTime string    `json:"startTime"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reservation represents one unit of a slot's capacity claimed by a company.
type Reservation struct {
	ID        string    `json:"id"`
	SlotID    string    `json:"slotId"`
	UserID    string    `json:"userId"`
	Company   string    `json:"company"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is the full persisted state. It is read whole and written whole.
//
// Version is owned by the DocumentStore: it is zero for a store that has never
// been written and increases by one on every successful Save.
type Document struct {
	Version      int64         `json:"-"`
	Users        []User        `json:"users"`
	Slots        []Slot        `json:"slots"`
	Reservations []Reservation `json:"reservations"`
}

// Clone returns a deep copy so callers can mutate it without aliasing the source.
func (d Document) Clone() Document {
	out := Document{Version: d.Version}
	if d.Users != nil {
		out.Users = make([]User, len(d.Users))
		copy(out.Users, d.Users)
	}
	if d.Slots != nil {
		out.Slots = make([]Slot, len(d.Slots))
		copy(out.Slots, d.Slots)
	}
	if d.Reservations != nil {
		out.Reservations = make([]Reservation, len(d.Reservations))
		copy(out.Reservations, d.Reservations)
	}
	return out
}
