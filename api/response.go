package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"betengine/service"

	log "github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service sentinels to status codes. Anything
// unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidPick),
		errors.Is(err, service.ErrInvalidDuel):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired

	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotYourTurn),
		errors.Is(err, service.ErrPaymentsDisabled):
		return http.StatusForbidden

	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRoundNotFound),
		errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrPaymentRequestNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrRoundClosed),
		errors.Is(err, service.ErrInvalidMatchState),
		errors.Is(err, service.ErrMatchConflict),
		errors.Is(err, service.ErrMoveTimedOut),
		errors.Is(err, service.ErrPaymentRequestNotPending),
		errors.Is(err, service.ErrPaymentRequestExpired):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
