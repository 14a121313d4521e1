package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"healthqueue/internal/events"
	"healthqueue/internal/models"
	"healthqueue/internal/store"
)

type checkInResponse struct {
	models.QueueEntry
	// LoginCode is only set when the check-in created the patient.
	LoginCode string `json:"loginCode,omitempty"`
}

type patientSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PhoneNumber    string    `json:"phoneNumber"`
	Department     string    `json:"department"`
	RegistrationID string    `json:"registrationId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	department := strings.TrimSpace(r.URL.Query().Get("department"))
	entries, err := h.store.ListActive(r.Context(), department)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	input := store.CheckInInput{
		Name:        strings.TrimSpace(req.Name),
		Age:         req.Age.Value,
		Gender:      strings.TrimSpace(req.Gender),
		PhoneNumber: req.phone(),
		Department:  strings.TrimSpace(req.Department),
		DoctorName:  strings.TrimSpace(req.Doctor),
		CheckInTime: h.now().UTC(),
	}
	if err := input.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "name, phone and department are required")
		return
	}
	input.EstimatedWaitMinutes = h.waitMinutes(input.Department)

	var code string
	input.IssueLoginCode = func() (string, error) {
		issued, hash, err := store.IssueLoginCode()
		code = issued
		return hash, err
	}

	result, err := h.store.CheckIn(r.Context(), input)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	outcome := "updated"
	status := http.StatusOK
	if result.Created {
		outcome = "created"
		status = http.StatusCreated
	}
	checkIns.WithLabelValues(outcome).Inc()
	h.publish(r.Context(), events.NewEvent(events.TypeCheckedIn, result.Entry, ""))

	resp := checkInResponse{QueueEntry: result.Entry}
	if result.PatientCreated {
		resp.LoginCode = code
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req advanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	entryID := req.entryID()
	req.Status = strings.TrimSpace(req.Status)
	if entryID == "" || req.Status == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "patientId and status are required")
		return
	}
	if !store.ValidStatus(req.Status) {
		writeError(w, r, http.StatusBadRequest, "invalid_status", "unknown status")
		return
	}

	entry, err := h.store.Advance(r.Context(), store.AdvanceInput{
		EntryID:    entryID,
		DoctorID:   s.PrincipalID,
		Status:     req.Status,
		OccurredAt: h.now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	transitions.WithLabelValues(entry.Status).Inc()
	h.publish(r.Context(), events.NewEvent(events.TypeStatusChanged, entry, s.PrincipalID))
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "since must be an RFC3339 timestamp")
			return
		}
		since = parsed
	}

	entries, err := h.store.ListAll(r.Context(), since)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	patients := make([]patientSummary, 0, len(entries))
	for _, entry := range entries {
		patients = append(patients, patientSummary{
			ID:             entry.EntryID,
			Name:           entry.Name,
			PhoneNumber:    entry.PhoneNumber,
			Department:     entry.Department,
			RegistrationID: entry.RegistrationID,
			Status:         entry.Status,
			CreatedAt:      entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"patients": patients,
		"meta":     map[string]int{"total": len(patients)},
	})
}

func (h *Handler) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.store.ListDoctors(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doctors": doctors})
}

// handleStats summarizes active entries plus everything checked in today.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	active, err := h.store.ListActive(r.Context(), "")
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	today, err := h.store.ListAll(r.Context(), startOfDay)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	seen := make(map[string]bool, len(active)+len(today))
	entries := make([]models.QueueEntry, 0, len(active)+len(today))
	for _, list := range [][]models.QueueEntry{active, today} {
		for _, entry := range list {
			if seen[entry.EntryID] {
				continue
			}
			seen[entry.EntryID] = true
			entries = append(entries, entry)
		}
	}
	writeJSON(w, http.StatusOK, store.Summarize(entries, now))
}

func (h *Handler) publish(ctx context.Context, event events.Event) {
	if err := h.events.Publish(ctx, event); err != nil {
		h.log.WithError(err).WithField("event", event.Type).Warn("publish event failed")
	}
}
