package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/opd-appointment-booking/internal/booking"
	redisclient "github.com/hackgods/opd-appointment-booking/internal/redis"
)

func listDoctorsHandler(q *booking.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := booking.ProviderFilter{}
		if s := r.URL.Query().Get("specialty"); s != "" {
			f.Specialty = booking.Specialty(s)
			if !f.Specialty.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_specialty", "unknown specialty "+s)
				return
			}
		}
		if a := r.URL.Query().Get("active"); a != "" {
			active, err := strconv.ParseBool(a)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_active", "active must be true or false")
				return
			}
			f.ActiveOnly = active
		}

		writeJSON(w, http.StatusOK, q.ListProviders(f))
	}
}

func doctorAvailabilityHandler(q *booking.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		date := r.URL.Query().Get("date")
		if date != "" {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
		}

		slots, err := q.GetProviderAvailability(id, date)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func createAppointmentHandler(l *booking.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if id, ok := IdentityFrom(r.Context()); ok && id.Role == RolePatient && id.Subject != req.PatientID {
			writeError(w, http.StatusForbidden, "forbidden", "patients may only book for themselves")
			return
		}

		appt, err := l.CreateAppointment(r.Context(), booking.CreateRequest{
			PatientID:  req.PatientID,
			ProviderID: req.DoctorID,
			SlotID:     req.SlotID,
			Notes:      req.Notes,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

func listAppointmentsHandler(l *booking.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := r.URL.Query().Get("patientId")
		if patientID == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_id", "patientId is required")
			return
		}
		if id, ok := IdentityFrom(r.Context()); ok && id.Role == RolePatient && id.Subject != patientID {
			writeError(w, http.StatusForbidden, "forbidden", "patients may only list their own appointments")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := l.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleError(w, err)
			return
		}
		if appts == nil {
			appts = []booking.Appointment{}
		}

		writeJSON(w, http.StatusOK, appts)
	}
}

func getAppointmentHandler(q *booking.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := q.GetAppointmentDetail(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, err)
			return
		}
		if !canSeeAppointment(r, detail.PatientID) {
			writeError(w, http.StatusForbidden, "forbidden", "not your appointment")
			return
		}

		writeJSON(w, http.StatusOK, detail)
	}
}

func appointmentHistoryHandler(l *booking.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		appt, err := l.GetAppointment(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		if !canSeeAppointment(r, appt.PatientID) {
			writeError(w, http.StatusForbidden, "forbidden", "not your appointment")
			return
		}

		events, err := l.History(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		if events == nil {
			events = []booking.Event{}
		}

		writeJSON(w, http.StatusOK, events)
	}
}

func transitionAppointmentHandler(l *booking.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFrom(r.Context()); ok && id.Role == RolePatient {
			writeError(w, http.StatusForbidden, "forbidden", "patients may only cancel appointments")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := l.Transition(r.Context(), chi.URLParam(r, "id"), booking.Status(req.Status))
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(l *booking.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// the body is optional
		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if ident, ok := IdentityFrom(r.Context()); ok && ident.Role == RolePatient {
			current, err := l.GetAppointment(r.Context(), id)
			if err != nil {
				handleError(w, err)
				return
			}
			if current.PatientID != ident.Subject {
				writeError(w, http.StatusForbidden, "forbidden", "not your appointment")
				return
			}
		}

		appt, err := l.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func canSeeAppointment(r *http.Request, patientID string) bool {
	id, ok := IdentityFrom(r.Context())
	if !ok || id.Role != RolePatient {
		return true
	}
	return id.Subject == patientID
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
