package server

import (
	"net/http"
	"strconv"
)

// handleOptions renders the settings page and processes its form posts
// (daily quota update, manual reset).
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		// Render below.
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		switch r.FormValue("action") {
		case "save":
			required, err := strconv.Atoi(r.FormValue("required"))
			if err != nil {
				http.Error(w, "Invalid required value", http.StatusBadRequest)
				return
			}
			if _, err := s.counter.SetRequired(r.Context(), required); err != nil {
				s.logger.Error("Failed to update required replies", "error", err)
				http.Error(w, "Update failed", http.StatusInternalServerError)
				return
			}
		case "reset":
			if _, err := s.counter.Reset(r.Context()); err != nil {
				s.logger.Error("Failed to reset counter", "error", err)
				http.Error(w, "Reset failed", http.StatusInternalServerError)
				return
			}
		default:
			http.Error(w, "Unknown action", http.StatusBadRequest)
			return
		}

		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.counter.Status(r.Context())
	if err != nil {
		s.logger.Error("Status failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")

	data := map[string]any{
		"Count":         st.Count,
		"Required":      st.RequiredReplies,
		"QuotaMet":      st.QuotaMet(),
		"LastResetDate": st.LastResetDate,
	}

	if err := templates.ExecuteTemplate(w, "options.tmpl", data); err != nil {
		s.logger.Error("Failed to render template", "template", "options.tmpl", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
