package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"healthqueue/internal/models"
	"healthqueue/internal/session"
	"healthqueue/internal/store"
	"healthqueue/internal/throttle"
)

type sessionContextKey struct{}

func sessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(session.Session)
	return s, ok
}

// requireDoctor rejects requests without a valid session with 401 and
// sessions of any other role with 403.
func (h *Handler) requireDoctor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.FromRequest(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if s.Role != models.RoleDoctor {
			writeError(w, r, http.StatusForbidden, "forbidden", "only doctors can access this resource")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if !models.ValidRole(role) {
		writeError(w, r, http.StatusBadRequest, "invalid_role", "role must be patient or doctor")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PhoneNumber == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "name and phoneNumber are required")
		return
	}

	code, hash, err := store.IssueLoginCode()
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	principal, err := h.store.CreatePrincipal(r.Context(), store.CreatePrincipalInput{
		Role:          role,
		Name:          req.Name,
		PhoneNumber:   string(req.PhoneNumber),
		LoginCodeHash: hash,
		Department:    strings.TrimSpace(req.Department),
		CreatedAt:     h.now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.log.WithField("role", role).WithField("user_id", principal.ID).Info("principal registered")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"loginCode": code,
		"user":      principal,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	role := req.role()
	if req.PhoneNumber == "" || req.LoginCode == "" || role == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "phoneNumber, loginCode and role are required")
		return
	}
	if !models.ValidRole(role) {
		writeError(w, r, http.StatusBadRequest, "invalid_role", "role must be patient or doctor")
		return
	}

	ctx := r.Context()
	key := throttle.LoginKey(role, string(req.PhoneNumber))
	if err := h.throttle.Check(ctx, key); err != nil {
		if errors.Is(err, throttle.ErrLocked) {
			loginAttempts.WithLabelValues(role, "locked").Inc()
			h.writeStoreError(w, r, err)
			return
		}
		h.log.WithError(err).Warn("login throttle unavailable")
	}

	principal, err := store.Authenticate(ctx, h.store, role, string(req.PhoneNumber), string(req.LoginCode))
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			loginAttempts.WithLabelValues(role, "failure").Inc()
			if ferr := h.throttle.Fail(ctx, key); ferr != nil {
				h.log.WithError(ferr).Warn("record login failure")
			}
		}
		h.writeStoreError(w, r, err)
		return
	}
	if err := h.throttle.Reset(ctx, key); err != nil {
		h.log.WithError(err).Warn("reset login failures")
	}

	if _, err := h.sessions.Issue(w, principal.Role, principal.ID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	loginAttempts.WithLabelValues(role, "success").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    principal,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.FromRequest(r)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	principal, err := h.store.GetPrincipal(r.Context(), s.Role, s.PrincipalID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     principal,
		"userType": s.Role,
	})
}
