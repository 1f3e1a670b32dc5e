package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/revend-core/internal/vision"
)

// classifyRequest is the request body for POST /kiosk/classify.
type classifyRequest struct {
	MachineID   string `json:"machine_id"`
	ImageBase64 string `json:"image_base64"`
}

// classifyResponse is the verdict returned to the kiosk. The coordinator
// maps material directly onto a handoff token.
type classifyResponse struct {
	Status         string  `json:"status"`
	Material       string  `json:"material"`
	Confidence     float64 `json:"confidence"`
	Points         int     `json:"points"`
	TransactionRef string  `json:"transaction_ref"`
}

// handleKioskClassify runs one deposited item through the full pipeline:
// resolve the machine's active user, classify the camera frame, record
// the transaction, and broadcast the outcome. The kiosk receives the
// verdict it needs to answer the detector's READY.
func (s *Server) handleKioskClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.MachineID == "" {
		writeBadRequest(w, "machine_id is required")
		return
	}
	if req.ImageBase64 == "" {
		writeBadRequest(w, "image_base64 is required")
		return
	}

	if s.broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "detection pipeline not ready")
		return
	}

	userID, ok := s.sessions.ActiveUserForMachine(req.MachineID)
	if !ok {
		// The coordinator checks before capturing, so this is a race
		// with session expiry, not the normal no-session path.
		writeConflict(w, "no active session for machine")
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeBadRequest(w, "image_base64 is not valid base64")
		return
	}

	res, err := s.vision.Classify(r.Context(), image, userID)
	if err != nil {
		if errors.Is(err, vision.ErrUnavailable) {
			s.logger.Warn("classification service unavailable",
				"machine_id", req.MachineID,
				"error", err,
			)
			writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "classification service unavailable")
			return
		}
		s.logger.Error("classification failed", "machine_id", req.MachineID, "error", err)
		writeInternalError(w, "classification failed")
		return
	}

	entry, err := s.broadcaster.Dispatch(r.Context(), userID, req.MachineID, res)
	if err != nil {
		s.logger.Error("detection dispatch failed",
			"user_id", userID,
			"machine_id", req.MachineID,
			"error", err,
		)
		writeInternalError(w, "failed to record detection")
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{
		Status:         "success",
		Material:       res.Material.String(),
		Confidence:     res.Confidence,
		Points:         res.Points,
		TransactionRef: entry.TransactionRef,
	})
}

// handleKioskSession tells a kiosk whether its machine has a live session.
// The coordinator calls this on every READY before spending a
// classification request.
func (s *Server) handleKioskSession(w http.ResponseWriter, r *http.Request) {
	machineID := chi.URLParam(r, "id")

	userID, active := s.sessions.ActiveUserForMachine(machineID)
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  active,
		"user_id": userID,
	})
}
