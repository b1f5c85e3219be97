package http

import (
	"context"
	"net/http"
	"strings"
)

type RouterConfig struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Slots        *SlotHandler
	Reservations *ReservationHandler
	// Session guards every route except login, signup and health.
	Session func(http.Handler) http.Handler
	// Admin guards administrator routes behind Session.
	Admin func(http.Handler) http.Handler
	// Throttle guards login and signup.
	Throttle   func(http.Handler) http.Handler
	Health     func(ctx context.Context) error
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protected := func(h http.HandlerFunc) http.Handler {
		return wrap(h, cfg.Session)
	}
	public := func(h http.HandlerFunc) http.Handler {
		return wrap(h, cfg.Throttle)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		writeHealth(w, r, cfg.Health)
	})

	if cfg.Auth != nil {
		mux.Handle("/sessions", public(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.CreateSession(w, r)
		}))
		mux.HandleFunc("/sessions/current", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteCurrentSession(w, r)
		})
	}

	if cfg.Users != nil {
		mux.Handle("/users", public(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Users.Register(w, r)
		}))
		mux.Handle("/me", protected(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Users.Me(w, r)
			case http.MethodPut:
				cfg.Users.UpdateMe(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		}))
		mux.Handle("/me/password", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				methodNotAllowed(w, http.MethodPut)
				return
			}
			cfg.Users.ChangePassword(w, r)
		}))
	}

	if cfg.Slots != nil {
		mux.Handle("/slots", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Slots.List(w, r)
		}))
		generate := wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Slots.Generate(w, r)
		}), cfg.Admin)
		mux.Handle("/slots/generate", wrap(generate, cfg.Session))
	}

	if cfg.Reservations != nil {
		mux.Handle("/reservations", protected(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Reservations.List(w, r)
			case http.MethodPost:
				cfg.Reservations.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
		mux.Handle("/reservations/", protected(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/reservations/")
			if id == "" || strings.Contains(id, "/") {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithReservationID(r.Context(), id)
			r = r.WithContext(ctx)
			switch r.Method {
			case http.MethodPut:
				cfg.Reservations.Update(w, r)
			case http.MethodDelete:
				cfg.Reservations.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodPut, http.MethodDelete)
			}
		}))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func wrap(h http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	if mw == nil {
		return h
	}
	return mw(h)
}

func writeHealth(w http.ResponseWriter, r *http.Request, check func(ctx context.Context) error) {
	responder := newResponder(LoggerFromContext(r.Context()))
	if check != nil {
		if err := check(r.Context()); err != nil {
			responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
			responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
