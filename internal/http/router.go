package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Auth       *AuthHandler
	Events     *EventHandler
	Attendance *AttendanceHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Auth != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.CreateSession(w, r)
		})
		mux.HandleFunc("/sessions/current", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteCurrentSession(w, r)
		})
	}

	if cfg.Events != nil {
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Events.Create(w, r)
		})
		mux.HandleFunc("/events/", func(w http.ResponseWriter, r *http.Request) {
			routeEvent(cfg, w, r)
		})
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

// routeEvent dispatches everything under /events/{id}. The event id and, for
// occurrence routes, the date and target user travel via the request context.
func routeEvent(cfg RouterConfig, w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/events/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		http.NotFound(w, r)
		return
	}

	r = r.WithContext(ContextWithEventID(r.Context(), segments[0]))

	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			cfg.Events.Get(w, r)
		case http.MethodPut:
			cfg.Events.Update(w, r)
		case http.MethodDelete:
			cfg.Events.Delete(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}

	case len(segments) == 2 && segments[1] == "lock":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		cfg.Events.SetLocked(w, r)

	case len(segments) == 2 && segments[1] == "groups":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		cfg.Events.AssignGroups(w, r)

	case len(segments) == 2 && segments[1] == "expected-attendees":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		cfg.Events.ExpectedAttendees(w, r)

	case segments[1] == "occurrences":
		routeOccurrence(cfg, w, r, segments[2:])

	default:
		http.NotFound(w, r)
	}
}

func routeOccurrence(cfg RouterConfig, w http.ResponseWriter, r *http.Request, segments []string) {
	if len(segments) == 0 || segments[0] == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		cfg.Events.ListOccurrences(w, r)
		return
	}

	r = r.WithContext(ContextWithDate(r.Context(), segments[0]))

	if len(segments) == 1 {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		cfg.Events.DeleteOccurrence(w, r)
		return
	}

	if cfg.Attendance == nil {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(segments) == 2 && segments[1] == "token":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		cfg.Attendance.IssueToken(w, r)

	case len(segments) == 2 && segments[1] == "checkin":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		cfg.Attendance.CheckIn(w, r)

	case len(segments) == 2 && segments[1] == "checkout":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		cfg.Attendance.CheckOut(w, r)

	case len(segments) == 2 && segments[1] == "attendance":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		cfg.Attendance.List(w, r)

	case len(segments) == 3 && segments[1] == "attendance":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		r = r.WithContext(ContextWithTargetUserID(r.Context(), segments[2]))
		cfg.Attendance.SetStatus(w, r)

	case len(segments) == 2 && segments[1] == "audit":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		cfg.Attendance.ListAudit(w, r)

	default:
		http.NotFound(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
