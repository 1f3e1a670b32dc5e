package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/revend-core/internal/infrastructure/mqtt"
)

// defaultHeartbeatInterval is how often the machine refreshes its
// retained status payload. The LWT covers hard failures; the heartbeat
// carries the soft telemetry (uptime, cycle count) alongside.
const defaultHeartbeatInterval = time.Minute

// StatusPublisher is what the heartbeat needs from the MQTT client.
type StatusPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// heartbeatPayload is the retained machine status document.
type heartbeatPayload struct {
	Status        string `json:"status"`
	MachineID     string `json:"machine_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Detections    uint64 `json:"detections"`
	Timestamp     string `json:"timestamp"`
}

// Heartbeat periodically republishes this machine's retained status so
// the backend's fleet view carries fresh uptime and throughput numbers,
// not just the broker's online/offline flag.
type Heartbeat struct {
	publisher StatusPublisher
	machineID string
	interval  time.Duration
	logger    Logger

	started    time.Time
	detections atomic.Uint64
	now        func() time.Time
}

// NewHeartbeat creates a heartbeat publisher. An interval of zero or
// below falls back to the default.
func NewHeartbeat(publisher StatusPublisher, machineID string, interval time.Duration, logger Logger) *Heartbeat {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Heartbeat{
		publisher: publisher,
		machineID: machineID,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordDetection bumps the cycle counter carried in the heartbeat.
// Safe to call from the detection loop.
func (h *Heartbeat) RecordDetection() {
	h.detections.Add(1)
}

// Run publishes heartbeats until the context is cancelled. Publish
// failures are logged and retried on the next tick; the broker's LWT
// covers the machine actually going dark.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.started = h.now()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// First beat immediately so a freshly booted machine shows up
	// without waiting a full interval.
	h.beat()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	now := h.now()
	payload, err := json.Marshal(heartbeatPayload{
		Status:        "online",
		MachineID:     h.machineID,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Detections:    h.detections.Load(),
		Timestamp:     now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("encoding heartbeat", "error", err)
		return
	}

	topic := mqtt.Topics{}.MachineStatus(h.machineID)
	if err := h.publisher.PublishRetained(topic, payload); err != nil {
		h.logger.Warn("heartbeat publish failed", "error", fmt.Errorf("topic %s: %w", topic, err))
	}
}
