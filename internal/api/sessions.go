package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/session"
)

// prepareInsertRequest is the request body for POST /session/prepare-insert.
type prepareInsertRequest struct {
	MachineID string `json:"machine_id"`
}

// sessionResponse describes an active session to the user app.
type sessionResponse struct {
	Status        string `json:"status"`
	SessionActive bool   `json:"session_active"`
	UserID        string `json:"user_id"`
	MachineID     string `json:"machine_id"`
	ExpiresAt     string `json:"expires_at"`
}

// handlePrepareInsert opens (or returns) the caller's deposit session on
// a machine. Repeats from the same user are idempotent; a machine held by
// another user's live session is refused.
func (s *Server) handlePrepareInsert(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)

	var req prepareInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.MachineID == "" {
		writeBadRequest(w, "machine_id is required")
		return
	}

	sess, err := s.sessions.PrepareInsert(userID, req.MachineID)
	if err != nil {
		if errors.Is(err, session.ErrMachineBusy) {
			writeConflict(w, "machine is in use by another user")
			return
		}
		writeInternalError(w, "failed to open session")
		return
	}

	s.logger.Info("session opened",
		"user_id", userID,
		"machine_id", req.MachineID,
		"expires_at", sess.ExpiresAt.UTC().Format(time.RFC3339),
	)

	// Tell the kiosk display a user has scanned in.
	s.Hub().PublishMachineEvent(req.MachineID, "session_started", map[string]any{
		"user_id":    userID,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, sessionResponse{
		Status:        "success",
		SessionActive: true,
		UserID:        userID,
		MachineID:     sess.MachineID,
		ExpiresAt:     sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// handleEndSession closes the caller's session. Ending an absent session
// is a successful no-op.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)

	sess, had := s.sessions.Get(userID)
	s.sessions.End(userID)

	status := "success"
	if !had {
		status = "not_found"
	} else {
		s.logger.Info("session ended", "user_id", userID, "machine_id", sess.MachineID)
		s.Hub().PublishMachineEvent(sess.MachineID, "session_ended", map[string]any{
			"user_id": userID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"user_id": userID,
	})
}

// handleSessionStatus reports whether the caller holds a live session.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)

	sess, ok := s.sessions.Get(userID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"has_session": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"has_session": true,
		"machine_id":  sess.MachineID,
		"expires_at":  sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// handleDetectionHistory returns the caller's recent detections, newest
// first, capped at the history depth.
func (s *Server) handleDetectionHistory(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)

	var entries []detection.HistoryEntry
	if s.history != nil {
		entries = s.history.Recent(userID)
	}
	if entries == nil {
		entries = []detection.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// handlePointsBalance returns the caller's accumulated points.
func (s *Server) handlePointsBalance(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)

	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		s.logger.Error("balance query failed", "user_id", userID, "error", err)
		writeInternalError(w, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
	})
}

// handleListTransactions returns the caller's recorded transactions,
// newest first. The limit query parameter is clamped by the ledger.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	txs, err := s.ledger.ListByUser(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("transaction query failed", "user_id", userID, "error", err)
		writeInternalError(w, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}
