package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/example/slot-booking/internal/application"
)

// SessionVerifier validates a raw session token.
type SessionVerifier interface {
	Verify(raw string) (SessionClaims, error)
}

// SessionResolver restores the account named by a verified token.
type SessionResolver interface {
	Authenticate(ctx context.Context, params application.AuthenticateParams) (application.User, bool, error)
}

func RequireSession(verifier SessionVerifier, resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			if token == "" {
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "AUTH_SESSION_EXPIRED",
					Message:   errMissingSessionToken.Error(),
				})
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "session token rejected", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "AUTH_SESSION_EXPIRED",
					Message:   "セッションが無効です。再度ログインしてください。",
				})
				return
			}

			user, ok, err := resolver.Authenticate(r.Context(), application.AuthenticateParams{Email: claims.Email})
			if err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "session restore failed", "error", err, "error_kind", application.ErrorKind(err))
				responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: "セッション検証中にエラーが発生しました。"})
				return
			}
			if !ok || user.ID != claims.Subject {
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "AUTH_SESSION_EXPIRED",
					Message:   "セッションが見つかりません。再度ログインしてください。",
				})
				return
			}

			ctx := ContextWithPrincipal(r.Context(), application.PrincipalFor(user))
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With("principal_id", user.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects principals without the administrator role.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.IsAdmin() {
				responder.writeJSON(r.Context(), w, http.StatusForbidden, errorResponse{
					ErrorCode: "AUTH_FORBIDDEN",
					Message:   errAdministratorRequired.Error(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
