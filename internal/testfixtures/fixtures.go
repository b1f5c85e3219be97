package testfixtures

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/slot-booking/internal/application"
	"github.com/example/slot-booking/internal/persistence"
)

var (
	userCounter uint64
	slotCounter uint64
)

var referenceTime = time.Date(2024, time.May, 1, 0, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate is the calendar day fixtures book against.
const ReferenceDate = "2024-05-01"

// DefaultPassword is the plain password every user fixture is created with.
const DefaultPassword = "password123"

// TestArgon2idParams keeps password hashing cheap in tests.
var TestArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// HashPassword hashes password with TestArgon2idParams.
func HashPassword(tb testing.TB, password string) string {
	tb.Helper()

	hash, err := application.CreatePasswordHash(password, TestArgon2idParams)
	if err != nil {
		tb.Fatalf("failed to hash password: %v", err)
	}
	return hash
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic account that can be materialised for
// application or persistence tests.
type UserFixture struct {
	ID        string
	Email     string
	Password  string
	Company   string
	Role      application.Role
	CreatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic member fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:        id,
		Email:     fmt.Sprintf("%s@example.com", id),
		Password:  DefaultPassword,
		Company:   fmt.Sprintf("Company %03d", idx),
		Role:      application.RoleMember,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserCompany overrides the generated company.
func WithUserCompany(company string) UserOption {
	return func(f *UserFixture) {
		f.Company = company
	}
}

// WithUserPassword overrides the plain password.
func WithUserPassword(password string) UserOption {
	return func(f *UserFixture) {
		f.Password = password
	}
}

// WithUserAdmin grants or removes the administrator role.
func WithUserAdmin(isAdmin bool) UserOption {
	return func(f *UserFixture) {
		if isAdmin {
			f.Role = application.RoleAdmin
			return
		}
		f.Role = application.RoleMember
	}
}

// Record returns the fixture as a stored user with a hashed password.
func (f UserFixture) Record(tb testing.TB) persistence.User {
	tb.Helper()
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		PasswordHash: HashPassword(tb, f.Password),
		Company:      f.Company,
		Role:         f.Role.String(),
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:        f.ID,
		Email:     f.Email,
		Company:   f.Company,
		Role:      f.Role,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Principal returns the principal acting as the fixture user.
func (f UserFixture) Principal() application.Principal {
	return application.PrincipalFor(f.Application())
}

// ----------------------------- Slot fixtures -----------------------------

// SlotFixture represents a deterministic slot record.
type SlotFixture struct {
	ID        string
	Date      string
	StartTime string
	CreatedAt time.Time
}

// SlotOption configures the generated slot fixture.
type SlotOption func(*SlotFixture)

// NewSlotFixture returns an 09:00 slot on ReferenceDate with optional overrides.
func NewSlotFixture(opts ...SlotOption) SlotFixture {
	idx := atomic.AddUint64(&slotCounter, 1)
	fixture := SlotFixture{
		ID:        fmt.Sprintf("slot-%03d", idx),
		Date:      ReferenceDate,
		StartTime: "09:00",
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSlotID overrides the generated slot ID.
func WithSlotID(id string) SlotOption {
	return func(f *SlotFixture) {
		f.ID = id
	}
}

// WithSlotDate overrides the slot date.
func WithSlotDate(date string) SlotOption {
	return func(f *SlotFixture) {
		f.Date = date
	}
}

// WithSlotStart overrides the slot start time.
func WithSlotStart(start string) SlotOption {
	return func(f *SlotFixture) {
		f.StartTime = start
	}
}

// Record returns the fixture as a stored slot.
func (f SlotFixture) Record() persistence.Slot {
	return persistence.Slot{ID: f.ID, Date: f.Date, StartTime: f.StartTime, CreatedAt: f.CreatedAt}
}

// ReservationRecord returns a stored reservation of slot by user.
func ReservationRecord(id string, slot SlotFixture, user UserFixture) persistence.Reservation {
	return persistence.Reservation{
		ID:        id,
		SlotID:    slot.ID,
		UserID:    user.ID,
		Company:   user.Company,
		Date:      slot.Date,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}
