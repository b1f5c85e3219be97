package testfixtures

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/slot-booking/internal/application"
	"github.com/example/slot-booking/internal/persistence"
)

// ServiceFactory assists tests with constructing application services over an
// in-memory store using deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Store       *persistence.MemoryStore
	Database    *persistence.Database
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Store:       persistence.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Store == nil {
		factory.Store = persistence.NewMemoryStore()
	}
	if factory.Database == nil {
		factory.Database = persistence.NewDatabase(factory.Store, persistence.WithLogger(factory.Logger))
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithDocument primes the in-memory store.
func WithDocument(doc persistence.Document) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Store = persistence.NewMemoryStore(doc)
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewIdentityService builds an identity service with cheap password hashing.
func (f *ServiceFactory) NewIdentityService() *application.IdentityService {
	return application.NewIdentityServiceWithLogger(
		f.Database,
		application.NewPasswordHasher(TestArgon2idParams),
		application.VerifyPassword,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewCatalogService builds a catalog service.
func (f *ServiceFactory) NewCatalogService() *application.CatalogService {
	return application.NewCatalogServiceWithLogger(
		f.Database,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewReservationService builds a reservation service publishing to publisher.
// A nil publisher discards events.
func (f *ServiceFactory) NewReservationService(publisher application.EventPublisher) *application.ReservationService {
	return application.NewReservationServiceWithLogger(
		f.Database,
		publisher,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// Document returns the current stored document.
func (f *ServiceFactory) Document(tb testing.TB) persistence.Document {
	tb.Helper()

	doc, err := f.Store.Load(context.Background())
	if err != nil {
		tb.Fatalf("failed to load document: %v", err)
	}
	return doc
}
