package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/revend-core/internal/infrastructure/mqtt"
)

// machineStatus is one machine's last known state, built from the
// retained status messages kiosk units publish (heartbeats plus the
// broker's LWT when a machine drops).
type machineStatus struct {
	MachineID     string    `json:"machine_id"`
	Online        bool      `json:"online"`
	LastSeen      time.Time `json:"last_seen"`
	UptimeSeconds int64     `json:"uptime_seconds,omitempty"`
	Detections    uint64    `json:"detections,omitempty"`
}

// machineStatusCache holds the fleet view. Retained messages replay on
// subscribe, so the cache is warm shortly after startup.
type machineStatusCache struct {
	mu      sync.RWMutex
	entries map[string]machineStatus
}

func newMachineStatusCache() *machineStatusCache {
	return &machineStatusCache{
		entries: make(map[string]machineStatus),
	}
}

func (c *machineStatusCache) set(status machineStatus) {
	c.mu.Lock()
	c.entries[status.MachineID] = status
	c.mu.Unlock()
}

func (c *machineStatusCache) get(machineID string) (machineStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.entries[machineID]
	return status, ok
}

// statusPayload is the wire form of a machine status message. Heartbeats
// carry the telemetry fields; LWT payloads carry only status and timestamp.
type statusPayload struct {
	Status        string `json:"status"`
	MachineID     string `json:"machine_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Detections    uint64 `json:"detections"`
	Timestamp     string `json:"timestamp"`
}

// subscribeMachineStatus subscribes to all machine status topics and
// feeds the fleet cache. Also relays status changes to WebSocket clients
// so the app can grey out offline machines.
func (s *Server) subscribeMachineStatus() error {
	if s.mqtt == nil {
		return nil // MQTT not configured; machine status endpoint returns 404
	}

	topic := (mqtt.Topics{}).AllMachineStatuses()
	s.logger.Info("subscribing to machine status topics", "topic", topic)

	return s.mqtt.Subscribe(topic, 1, func(t string, payload []byte) error {
		machineID, ok := mqtt.MachineIDFromTopic(t)
		if !ok {
			return nil
		}

		var msg statusPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("unparseable machine status", "topic", t, "error", err)
			return nil
		}

		lastSeen, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			lastSeen = time.Now().UTC()
		}

		status := machineStatus{
			MachineID:     machineID,
			Online:        msg.Status == "online",
			LastSeen:      lastSeen,
			UptimeSeconds: msg.UptimeSeconds,
			Detections:    msg.Detections,
		}
		s.machines.set(status)

		s.logger.Debug("machine status updated",
			"machine_id", machineID,
			"online", status.Online,
		)
		return nil
	})
}

// handleMachineStatus returns the last known status for one machine.
func (s *Server) handleMachineStatus(w http.ResponseWriter, r *http.Request) {
	machineID := chi.URLParam(r, "id")

	status, ok := s.machines.get(machineID)
	if !ok {
		writeNotFound(w, "no status recorded for machine")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
