package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type CreateAppointmentRequest struct {
	PatientID string  `json:"patientId"`
	DoctorID  string  `json:"doctorId"`
	SlotID    string  `json:"slotId"`
	Notes     *string `json:"notes,omitempty"`
}

type TransitionRequest struct {
	Status string `json:"status"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope every /api/v1 endpoint answers with.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func writeRaw(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeRaw(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeRaw(w, status, Response{
		Success:   false,
		Error:     &ErrorBody{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}
