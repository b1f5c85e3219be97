package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/example/slot-booking/internal/persistence"
)

// IdentityService handles login, signup and profile maintenance.
type IdentityService struct {
	store          StateStore
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewIdentityService constructs an IdentityService with the provided dependencies.
func NewIdentityService(store StateStore, hash PasswordHasher, verify PasswordVerifier, idGenerator func() string, now func() time.Time) *IdentityService {
	return NewIdentityServiceWithLogger(store, hash, verify, idGenerator, now, nil)
}

// NewIdentityServiceWithLogger constructs an IdentityService with a specified logger.
func NewIdentityServiceWithLogger(store StateStore, hash PasswordHasher, verify PasswordVerifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *IdentityService {
	if hash == nil {
		hash = NewPasswordHasher(DefaultArgon2idParams)
	}
	if verify == nil {
		verify = VerifyPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &IdentityService{
		store:          store,
		hashPassword:   hash,
		verifyPassword: verify,
		idGenerator:    idGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *IdentityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "IdentityService", operation, attrs...)
}

// Authenticate resolves a user by email. With a password the stored hash must
// verify; without one the user is returned as-is, which is only safe behind a
// verified session token. ok is false when no user matches. err is reserved for
// store failures.
func (s *IdentityService) Authenticate(ctx context.Context, params AuthenticateParams) (user User, ok bool, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Authenticate",
		"email", email,
		"password_provided", params.Password != nil,
	)
	defer func() {
		switch {
		case err != nil:
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
		case !ok:
			logger.WarnContext(ctx, "authentication rejected")
		default:
			logger.With("user_id", user.ID).DebugContext(ctx, "authentication succeeded")
		}
	}()

	if email == "" {
		return
	}

	var (
		creds UserCredentials
		found bool
	)
	err = s.store.View(ctx, func(doc persistence.Document) error {
		if i, exists := findUserByEmail(&doc, email); exists {
			creds = toCredentials(doc.Users[i])
			found = true
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !found {
		return
	}

	if params.Password != nil {
		if verifyErr := s.verifyPassword(creds.PasswordHash, *params.Password); verifyErr != nil {
			if !errors.Is(verifyErr, ErrInvalidCredentials) {
				logger.WarnContext(ctx, "stored password hash unusable", "error", verifyErr)
			}
			return
		}
	}

	user = creds.User
	ok = true
	return
}

// Register creates a member account.
func (s *IdentityService) Register(ctx context.Context, params RegisterParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}

	email := normalizeEmail(params.Email)
	company := normalizeCompany(params.Company)

	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID, "company", user.Company).InfoContext(ctx, "user registered")
	}()

	vErr := &ValidationError{}
	vErr.merge(validateEmail(email))
	vErr.merge(validateCompany(company))
	if params.Password == "" {
		vErr.add("password", "password is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hashPassword(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	rec := persistence.User{
		ID:           s.idGenerator(),
		Email:        email,
		PasswordHash: hash,
		Company:      company,
		Role:         RoleMember.String(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		if _, exists := findUserByEmail(doc, email); exists {
			return ErrDuplicateEmail
		}
		doc.Users = append(doc.Users, rec)
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	user = toUser(rec)
	return
}

// GetUser returns the user with the given ID.
func (s *IdentityService) GetUser(ctx context.Context, id string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("IdentityService is nil")
	}

	var (
		user  User
		found bool
	)
	err := s.store.View(ctx, func(doc persistence.Document) error {
		if i, ok := findUserByID(&doc, id); ok {
			user = toUser(doc.Users[i])
			found = true
		}
		return nil
	})
	if err != nil {
		return User{}, mapStoreError(err)
	}
	if !found {
		return User{}, ErrNotFound
	}
	return user, nil
}

// UpdateProfile changes the email and/or company of a user. Existing
// reservations keep the company they were booked under.
func (s *IdentityService) UpdateProfile(ctx context.Context, params UpdateProfileParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateProfile", "user_id", params.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update profile", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	var email, company string
	vErr := &ValidationError{}
	if params.Email != nil {
		email = normalizeEmail(*params.Email)
		vErr.merge(validateEmail(email))
	}
	if params.Company != nil {
		company = normalizeCompany(*params.Company)
		vErr.merge(validateCompany(company))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		i, ok := findUserByID(doc, params.UserID)
		if !ok {
			return ErrNotFound
		}

		changed := false
		if params.Email != nil && normalizeEmail(doc.Users[i].Email) != email {
			if j, exists := findUserByEmail(doc, email); exists && j != i {
				return ErrDuplicateEmail
			}
			doc.Users[i].Email = email
			changed = true
		}
		if params.Company != nil && doc.Users[i].Company != company {
			doc.Users[i].Company = company
			changed = true
		}

		user = toUser(doc.Users[i])
		if !changed {
			return persistence.ErrSkipWrite
		}
		doc.Users[i].UpdatedAt = s.now()
		user = toUser(doc.Users[i])
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		user = User{}
		return
	}
	return
}

// ChangePassword replaces the password after verifying the current one.
func (s *IdentityService) ChangePassword(ctx context.Context, params ChangePasswordParams) (err error) {
	if s == nil {
		return fmt.Errorf("IdentityService is nil")
	}

	logger := s.loggerWith(ctx, "ChangePassword", "user_id", params.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change password", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password changed")
	}()

	if params.NewPassword != params.ConfirmPassword {
		return ErrMismatch
	}
	if params.NewPassword == "" {
		return fieldError("new_password", "new password is required")
	}

	current, err := s.GetUser(ctx, params.UserID)
	if err != nil {
		return err
	}

	password := params.CurrentPassword
	if _, ok, authErr := s.Authenticate(ctx, AuthenticateParams{Email: current.Email, Password: &password}); authErr != nil {
		return authErr
	} else if !ok {
		return ErrInvalidCredentials
	}

	hash, err := s.hashPassword(params.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		i, ok := findUserByID(doc, params.UserID)
		if !ok {
			return ErrNotFound
		}
		doc.Users[i].PasswordHash = hash
		doc.Users[i].UpdatedAt = s.now()
		return nil
	})
	return mapStoreError(err)
}

// SeedUsers inserts each seed whose email is not yet registered and returns how
// many were added. Running it again adds nothing.
func (s *IdentityService) SeedUsers(ctx context.Context, seeds []SeedUser) (created int, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SeedUsers", "requested", len(seeds))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed users", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("created", created).InfoContext(ctx, "users seeded")
	}()

	missing := make(map[string]bool, len(seeds))
	err = s.store.View(ctx, func(doc persistence.Document) error {
		for _, seed := range seeds {
			email := normalizeEmail(seed.Email)
			if _, exists := findUserByEmail(&doc, email); !exists {
				missing[email] = true
			}
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if len(missing) == 0 {
		return
	}

	now := s.now()
	records := make([]persistence.User, 0, len(missing))
	for _, seed := range seeds {
		email := normalizeEmail(seed.Email)
		if !missing[email] {
			continue
		}
		delete(missing, email)

		role := seed.Role
		if role != RoleAdmin {
			role = RoleMember
		}
		var hash string
		if hash, err = s.hashPassword(seed.Password); err != nil {
			err = fmt.Errorf("hash password: %w", err)
			return
		}
		records = append(records, persistence.User{
			ID:           s.idGenerator(),
			Email:        email,
			PasswordHash: hash,
			Company:      normalizeCompany(seed.Company),
			Role:         role.String(),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	err = s.store.Update(ctx, func(doc *persistence.Document) error {
		created = 0
		for _, rec := range records {
			if _, exists := findUserByEmail(doc, rec.Email); exists {
				continue
			}
			doc.Users = append(doc.Users, rec)
			created++
		}
		if created == 0 {
			return persistence.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
	}
	return
}

func validateEmail(email string) *ValidationError {
	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		vErr.add("email", "email is invalid")
	}
	return vErr
}

func validateCompany(company string) *ValidationError {
	vErr := &ValidationError{}
	if company == "" {
		vErr.add("company", "company is required")
	}
	return vErr
}
