package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/slot-booking/internal/persistence"
	"github.com/example/slot-booking/internal/testfixtures"
)

type testAPI struct {
	handler http.Handler
	tokens  *TokenIssuer
	factory *testfixtures.ServiceFactory
	admin   testfixtures.UserFixture
	a1      testfixtures.UserFixture
	a2      testfixtures.UserFixture
	b1      testfixtures.UserFixture
	nine    testfixtures.SlotFixture
}

func newTestAPI(t *testing.T, throttle *LimiterStore) *testAPI {
	t.Helper()

	api := &testAPI{
		admin: testfixtures.NewUserFixture(testfixtures.WithUserAdmin(true), testfixtures.WithUserCompany("INTERNAL")),
		a1:    testfixtures.NewUserFixture(testfixtures.WithUserCompany("A")),
		a2:    testfixtures.NewUserFixture(testfixtures.WithUserCompany("A")),
		b1:    testfixtures.NewUserFixture(testfixtures.WithUserCompany("B")),
		nine:  testfixtures.NewSlotFixture(testfixtures.WithSlotStart("09:00")),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api.factory = testfixtures.NewServiceFactory(
		testfixtures.WithLogger(logger),
		testfixtures.WithDocument(persistence.Document{
			Users: []persistence.User{api.admin.Record(t), api.a1.Record(t), api.a2.Record(t), api.b1.Record(t)},
			Slots: []persistence.Slot{api.nine.Record()},
		}),
	)

	tokens, err := NewTokenIssuer("test-secret", 0, nil)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	api.tokens = tokens

	identity := api.factory.NewIdentityService()
	api.handler = NewRouter(RouterConfig{
		Auth:         NewAuthHandler(identity, tokens, logger),
		Users:        NewUserHandler(identity, tokens, logger),
		Slots:        NewSlotHandler(api.factory.NewCatalogService(), logger),
		Reservations: NewReservationHandler(api.factory.NewReservationService(nil), logger),
		Session:      RequireSession(tokens, identity, logger),
		Admin:        RequireAdmin(logger),
		Throttle:     RateLimit(throttle, logger),
		Middleware:   []func(http.Handler) http.Handler{RequestLogger(logger)},
	})
	return api
}

func (api *testAPI) tokenFor(t *testing.T, user testfixtures.UserFixture) string {
	t.Helper()
	token, _, err := api.tokens.Issue(user.ID, user.Email, user.Role.String())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	return token
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("login issues session token via cookie and header", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/sessions", "", map[string]string{
			"email":    api.a1.Email,
			"password": testfixtures.DefaultPassword,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeBody[loginResponse](t, rec)
		if resp.Token == "" || rec.Header().Get("X-Session-Token") != resp.Token {
			t.Fatalf("expected token in body and header, got body=%q header=%q", resp.Token, rec.Header().Get("X-Session-Token"))
		}
		if resp.User.ID != api.a1.ID || resp.User.Company != "A" || resp.User.Role != "member" {
			t.Fatalf("unexpected user payload: %+v", resp.User)
		}

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == "session_token" {
				cookie = c
			}
		}
		if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
			t.Fatalf("expected http-only session cookie, got %+v", cookie)
		}

		claims, err := api.tokens.Verify(resp.Token)
		if err != nil {
			t.Fatalf("issued token does not verify: %v", err)
		}
		if claims.Subject != api.a1.ID || claims.Email != api.a1.Email || claims.Role != "member" {
			t.Fatalf("unexpected claims: %+v", claims)
		}
	})

	t.Run("wrong password is rejected with 401", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/sessions", "", map[string]string{
			"email":    api.a1.Email,
			"password": "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.ErrorCode != "AUTH_INVALID_CREDENTIALS" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodDelete, "/sessions/current", "", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
			t.Fatalf("expected expiring cookie, got %+v", cookies)
		}
	})
}

func TestUserHandlers(t *testing.T) {
	t.Parallel()

	t.Run("signup creates a member", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/users", "", map[string]string{
			"email":    "new@example.com",
			"password": "secret",
			"company":  "C",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[userResponse](t, rec)
		if resp.User.Email != "new@example.com" || resp.User.Role != "member" {
			t.Fatalf("unexpected user: %+v", resp.User)
		}
	})

	t.Run("duplicate email maps to 409", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/users", "", map[string]string{
			"email":    api.b1.Email,
			"password": "secret",
			"company":  "C",
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if resp := decodeBody[errorResponse](t, rec); resp.ErrorCode != "DUPLICATE_EMAIL" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("return localized validation errors", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/users", "", map[string]string{
			"email":    "not-an-email",
			"password": "secret",
			"company":  "  ",
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.Errors["email"] != "メールアドレスの形式が不正です。" || resp.Errors["company"] != "会社名は必須です。" {
			t.Fatalf("unexpected field errors: %+v", resp.Errors)
		}
	})

	t.Run("me returns and updates the caller", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)
		token := api.tokenFor(t, api.a1)

		rec := api.do(t, http.MethodGet, "/me", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp := decodeBody[userResponse](t, rec); resp.User.ID != api.a1.ID {
			t.Fatalf("unexpected user: %+v", resp.User)
		}

		rec = api.do(t, http.MethodPut, "/me", token, map[string]string{"company": "A2"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if resp := decodeBody[userResponse](t, rec); resp.User.Company != "A2" || resp.User.Email != api.a1.Email {
			t.Fatalf("unexpected user after update: %+v", resp.User)
		}
	})

	t.Run("email change keeps the session alive", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)
		token := api.tokenFor(t, api.a1)

		rec := api.do(t, http.MethodPut, "/me", token, map[string]string{"email": "renamed@example.com"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[userResponse](t, rec)
		if resp.User.Email != "renamed@example.com" {
			t.Fatalf("unexpected user after update: %+v", resp.User)
		}
		if resp.Token == "" || resp.ExpiresAt == "" {
			t.Fatalf("expected a reissued session token, got %+v", resp)
		}
		if header := rec.Header().Get("X-Session-Token"); header != resp.Token {
			t.Fatalf("expected X-Session-Token %q, got %q", resp.Token, header)
		}

		rec = api.do(t, http.MethodGet, "/me", resp.Token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected reissued token to authenticate, got %d: %s", rec.Code, rec.Body.String())
		}
		if me := decodeBody[userResponse](t, rec); me.User.ID != api.a1.ID || me.User.Email != "renamed@example.com" {
			t.Fatalf("unexpected user: %+v", me.User)
		}
	})

	t.Run("company change keeps the current token", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)
		token := api.tokenFor(t, api.a1)

		rec := api.do(t, http.MethodPut, "/me", token, map[string]string{"company": "A3"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if header := rec.Header().Get("X-Session-Token"); header != "" {
			t.Fatalf("expected no reissued token, got %q", header)
		}
		if rec = api.do(t, http.MethodGet, "/me", token, nil); rec.Code != http.StatusOK {
			t.Fatalf("expected original token to stay valid, got %d", rec.Code)
		}
	})

	t.Run("password confirmation mismatch maps to 422", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPut, "/me/password", api.tokenFor(t, api.a1), map[string]string{
			"current_password": testfixtures.DefaultPassword,
			"new_password":     "next-one",
			"confirm_password": "next-two",
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("password change succeeds with the current password", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPut, "/me/password", api.tokenFor(t, api.a1), map[string]string{
			"current_password": testfixtures.DefaultPassword,
			"new_password":     "next-one",
			"confirm_password": "next-one",
		})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = api.do(t, http.MethodPost, "/sessions", "", map[string]string{"email": api.a1.Email, "password": "next-one"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected login with new password, got %d", rec.Code)
		}
	})
}

func TestSlotHandlers(t *testing.T) {
	t.Parallel()

	t.Run("generation requires an administrator", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/slots/generate", api.tokenFor(t, api.a1), map[string]string{"date": "2024-05-02"})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("administrator generates the daily grid once", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)
		token := api.tokenFor(t, api.admin)

		rec := api.do(t, http.MethodPost, "/slots/generate", token, map[string]string{"date": "2024-05-02"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if resp := decodeBody[generateSlotsResponse](t, rec); resp.Total != 20 {
			t.Fatalf("expected 20 slots, got %+v", resp)
		}

		rec = api.do(t, http.MethodPost, "/slots/generate", token, map[string]string{"date": "2024-05-02"})
		if resp := decodeBody[generateSlotsResponse](t, rec); resp.Total != 0 {
			t.Fatalf("expected idempotent generation, got %+v", resp)
		}

		rec = api.do(t, http.MethodGet, "/slots?date=2024-05-02", token, nil)
		resp := decodeBody[listSlotsResponse](t, rec)
		if len(resp.Slots) != 20 || resp.Slots[0].StartTime != "08:00" || resp.Slots[19].StartTime != "17:30" {
			t.Fatalf("unexpected slot listing: %d slots", len(resp.Slots))
		}
	})

	t.Run("range generation honours weekday filter", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		// 2024-05-06 is a Monday.
		rec := api.do(t, http.MethodPost, "/slots/generate", api.tokenFor(t, api.admin), map[string]any{
			"from":     "2024-05-06",
			"to":       "2024-05-12",
			"weekdays": []string{"mon", "Wednesday"},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[generateSlotsResponse](t, rec)
		if resp.Total != 40 || resp.Created["2024-05-06"] != 20 || resp.Created["2024-05-08"] != 20 {
			t.Fatalf("unexpected range result: %+v", resp)
		}
	})

	t.Run("unknown weekday is a validation error", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/slots/generate", api.tokenFor(t, api.admin), map[string]any{
			"from":     "2024-05-06",
			"to":       "2024-05-12",
			"weekdays": []string{"someday"},
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("listing reports occupancy", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)
		token := api.tokenFor(t, api.a1)

		if rec := api.do(t, http.MethodPost, "/reservations", token, map[string]string{"slot_id": api.nine.ID}); rec.Code != http.StatusCreated {
			t.Fatalf("expected booking, got %d", rec.Code)
		}

		rec := api.do(t, http.MethodGet, "/slots?date="+testfixtures.ReferenceDate, token, nil)
		resp := decodeBody[listSlotsResponse](t, rec)
		if len(resp.Slots) != 1 {
			t.Fatalf("expected one slot, got %d", len(resp.Slots))
		}
		slot := resp.Slots[0]
		if slot.ReservedCount != 1 || slot.MaxCapacity != 2 || slot.IsFull || len(slot.Reservations) != 1 {
			t.Fatalf("unexpected occupancy: %+v", slot)
		}
	})

	t.Run("invalid date returns localized message", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodGet, "/slots?date=2024/05/01", api.tokenFor(t, api.a1), nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if resp := decodeBody[errorResponse](t, rec); resp.Errors["date"] != "日付は YYYY-MM-DD 形式で指定してください。" {
			t.Fatalf("unexpected field errors: %+v", resp.Errors)
		}
	})
}

func TestReservationHandlers(t *testing.T) {
	t.Parallel()

	t.Run("third booking on a slot maps to SLOT_FULL", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		for _, user := range []testfixtures.UserFixture{api.a1, api.b1} {
			rec := api.do(t, http.MethodPost, "/reservations", api.tokenFor(t, user), map[string]string{"slot_id": api.nine.ID})
			if rec.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
			}
		}

		rec := api.do(t, http.MethodPost, "/reservations", api.tokenFor(t, api.a2), map[string]string{"slot_id": api.nine.ID})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if resp := decodeBody[errorResponse](t, rec); resp.ErrorCode != "SLOT_FULL" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("missing slot id is a validation error", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/reservations", api.tokenFor(t, api.a1), map[string]string{})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("unknown slot maps to 404", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/reservations", api.tokenFor(t, api.a1), map[string]string{"slot_id": "missing"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("list, move and cancel within the company", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)
		admin := api.tokenFor(t, api.admin)

		if rec := api.do(t, http.MethodPost, "/slots/generate", admin, map[string]string{"date": "2024-05-02"}); rec.Code != http.StatusOK {
			t.Fatalf("expected slot generation, got %d", rec.Code)
		}
		slots := decodeBody[listSlotsResponse](t, api.do(t, http.MethodGet, "/slots?date=2024-05-02", admin, nil))
		target := slots.Slots[0]

		rec := api.do(t, http.MethodPost, "/reservations", api.tokenFor(t, api.a1), map[string]string{"slot_id": api.nine.ID})
		created := decodeBody[reservationResponse](t, rec).Reservation
		if created.StartTime != "09:00" {
			t.Fatalf("expected booked start time 09:00, got %+v", created)
		}

		rec = api.do(t, http.MethodGet, "/reservations", api.tokenFor(t, api.a2), nil)
		listed := decodeBody[listReservationsResponse](t, rec)
		if len(listed.Reservations) != 1 || listed.Reservations[0].ID != created.ID || listed.Reservations[0].StartTime != "09:00" {
			t.Fatalf("unexpected company listing: %+v", listed)
		}

		rec = api.do(t, http.MethodPut, "/reservations/"+created.ID, api.tokenFor(t, api.b1), map[string]string{"slot_id": target.ID})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for other company, got %d", rec.Code)
		}

		rec = api.do(t, http.MethodPut, "/reservations/"+created.ID, api.tokenFor(t, api.a2), map[string]string{"slot_id": target.ID})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		moved := decodeBody[reservationResponse](t, rec).Reservation
		if moved.ID != created.ID || moved.SlotID != target.ID || moved.Date != "2024-05-02" || moved.StartTime != target.StartTime {
			t.Fatalf("unexpected moved reservation: %+v", moved)
		}

		rec = api.do(t, http.MethodDelete, "/reservations/"+created.ID, admin, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		rec = api.do(t, http.MethodDelete, "/reservations/"+created.ID, admin, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 after cancel, got %d", rec.Code)
		}
	})
}

func TestRouter(t *testing.T) {
	t.Parallel()

	t.Run("unsupported methods return 405 with Allow", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPatch, "/reservations", api.tokenFor(t, api.a1), nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
			t.Fatalf("unexpected Allow header %q", allow)
		}
	})

	t.Run("health is public", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodGet, "/healthz", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp := decodeBody[healthResponse](t, rec); resp.Status != "ok" {
			t.Fatalf("unexpected status %q", resp.Status)
		}
	})

	t.Run("nested reservation paths are not found", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodDelete, "/reservations/a/b", api.tokenFor(t, api.a1), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
