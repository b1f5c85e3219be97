package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/slot-booking/internal/application"
	"github.com/example/slot-booking/internal/testfixtures"
)

type stubResolver struct {
	user application.User
	ok   bool
	err  error
	seen application.AuthenticateParams
}

func (s *stubResolver) Authenticate(_ context.Context, params application.AuthenticateParams) (application.User, bool, error) {
	s.seen = params
	return s.user, s.ok, s.err
}

func TestSessionMiddleware(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(time.Time{})
	tokens, err := NewTokenIssuer("middleware-secret", time.Hour, clock.NowFunc())
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	member := application.User{ID: "user-1", Email: "a@company", Company: "A", Role: application.RoleMember}

	valid, _, err := tokens.Issue(member.ID, member.Email, member.Role.String())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	otherIssuer, _ := NewTokenIssuer("other-secret", time.Hour, clock.NowFunc())
	forged, _, _ := otherIssuer.Issue(member.ID, member.Email, member.Role.String())
	expiredIssuer, _ := NewTokenIssuer("middleware-secret", time.Minute, func() time.Time {
		return clock.Now().Add(-2 * time.Hour)
	})
	expired, _, _ := expiredIssuer.Issue(member.ID, member.Email, member.Role.String())

	tests := []struct {
		name           string
		cookieToken    *http.Cookie
		headerToken    string
		resolver       *stubResolver
		expectedStatus int
	}{
		{
			name:           "missing credentials",
			resolver:       &stubResolver{user: member, ok: true},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed bearer header",
			headerToken:    "Bearer malformed",
			resolver:       &stubResolver{user: member, ok: true},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "token signed with another secret",
			headerToken:    "Bearer " + forged,
			resolver:       &stubResolver{user: member, ok: true},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			headerToken:    "Bearer " + expired,
			resolver:       &stubResolver{user: member, ok: true},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "account no longer exists",
			cookieToken:    &http.Cookie{Name: "session_token", Value: valid},
			resolver:       &stubResolver{},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "email now belongs to another account",
			headerToken:    "Bearer " + valid,
			resolver:       &stubResolver{user: application.User{ID: "user-2", Email: member.Email}, ok: true},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "store failure",
			headerToken:    "Bearer " + valid,
			resolver:       &stubResolver{err: errors.New("boom")},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "valid bearer token",
			headerToken:    "Bearer " + valid,
			resolver:       &stubResolver{user: member, ok: true},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid cookie token",
			cookieToken:    &http.Cookie{Name: "session_token", Value: valid},
			resolver:       &stubResolver{user: member, ok: true},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got application.Principal
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			handler := RequireSession(tokens, tc.resolver, nil)(next)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.cookieToken != nil {
				req.AddCookie(tc.cookieToken)
			}
			if tc.headerToken != "" {
				req.Header.Set("Authorization", tc.headerToken)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if recorder.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d", tc.expectedStatus, recorder.Code)
			}
			if tc.expectedStatus != http.StatusOK {
				return
			}
			if tc.resolver.seen.Password != nil || tc.resolver.seen.Email != member.Email {
				t.Fatalf("expected session restore by email, got %+v", tc.resolver.seen)
			}
			if got.UserID != member.ID || got.Company != "A" || got.IsAdmin() {
				t.Fatalf("unexpected principal %+v", got)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(nil)(next)

	cases := map[string]struct {
		principal *application.Principal
		want      int
	}{
		"no principal": {want: http.StatusForbidden},
		"member":       {principal: &application.Principal{UserID: "u", Role: application.RoleMember}, want: http.StatusForbidden},
		"admin":        {principal: &application.Principal{UserID: "u", Role: application.RoleAdmin}, want: http.StatusOK},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/slots/generate", nil)
			if tc.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tc.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests over the burst with Retry-After", func(t *testing.T) {
		t.Parallel()

		clock := testfixtures.NewClock(time.Time{})
		store := NewLimiterStore(1, 2, WithLimiterClock(clock.NowFunc()))
		handler := RateLimit(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		send := func(remote string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
			req.RemoteAddr = remote
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			return rec
		}

		for i := 0; i < 2; i++ {
			if rec := send("10.0.0.1:1234"); rec.Code != http.StatusNoContent {
				t.Fatalf("request %d: expected 204, got %d", i, rec.Code)
			}
		}
		rec := send("10.0.0.1:5678")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "1" {
			t.Fatalf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
		}

		if rec := send("10.0.0.2:1234"); rec.Code != http.StatusNoContent {
			t.Fatalf("expected other client to pass, got %d", rec.Code)
		}

		clock.Advance(time.Second)
		if rec := send("10.0.0.1:1234"); rec.Code != http.StatusNoContent {
			t.Fatalf("expected refilled bucket to pass, got %d", rec.Code)
		}
	})

	t.Run("nil store disables limiting", func(t *testing.T) {
		t.Parallel()

		handler := RateLimit(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		for i := 0; i < 10; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", nil))
			if rec.Code != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", rec.Code)
			}
		}
	})

	t.Run("router throttles login", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, NewLimiterStore(0.001, 1))
		body := map[string]string{"email": api.a1.Email, "password": "wrong"}
		if rec := api.do(t, http.MethodPost, "/sessions", "", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if rec := api.do(t, http.MethodPost, "/sessions", "", body); rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
	})
}

func TestLimiterStoreCleanup(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(time.Time{})
	store := NewLimiterStore(1, 1, WithLimiterClock(clock.NowFunc()), WithIdleTTL(time.Minute))

	store.Reserve("a")
	clock.Advance(30 * time.Second)
	store.Reserve("b")
	clock.Advance(45 * time.Second)
	store.Cleanup()

	if store.Len() != 1 {
		t.Fatalf("expected only the recent key to survive, got %d", store.Len())
	}
}

func TestTokenIssuer(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenIssuer(" ", time.Hour, nil); err == nil {
		t.Fatal("expected error for empty secret")
	}

	clock := testfixtures.NewClock(time.Time{})
	tokens, err := NewTokenIssuer("secret", time.Hour, clock.NowFunc())
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}

	raw, expiresAt, err := tokens.Issue("user-1", "a@company", "admin")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !expiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "a@company" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.IssuedAt == nil || !claims.IssuedAt.Time.Equal(clock.Now()) {
		t.Fatalf("unexpected iat %+v", claims.IssuedAt)
	}

	clock.Advance(2 * time.Hour)
	if _, err := tokens.Verify(raw); !errors.Is(err, errInvalidSessionToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}
