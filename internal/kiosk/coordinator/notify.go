package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/revend-core/internal/infrastructure/config"
)

// Event is one message from the backend's machine channel. The kiosk
// display reacts to session_started and session_ended; keepalives are
// consumed silently.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventHandler receives machine events. Called from the notifier's read
// loop; implementations must not block.
type EventHandler func(Event)

// Notifier maintains the kiosk's WebSocket subscription to the backend
// so the display can react the moment a user scans in.
//
// Reconnection uses bounded exponential backoff: after MaxAttempts
// consecutive failures the notifier gives up with a visible warning
// rather than retrying forever. A successful connection resets the
// attempt counter.
type Notifier struct {
	url      string
	token    string
	cfg      config.NotifyConfig
	handler  EventHandler
	logger   Logger
	dialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)
}

// NewNotifier creates a notifier for the given machine.
func NewNotifier(kiosk config.KioskConfig, handler EventHandler, logger Logger) *Notifier {
	if logger == nil {
		logger = noopLogger{}
	}

	wsBase := strings.Replace(kiosk.BackendURL, "http", "ws", 1)
	url := fmt.Sprintf("%s/api/v1/ws/machines/%s", wsBase, kiosk.MachineID)

	return &Notifier{
		url:     url,
		token:   kiosk.APIToken,
		cfg:     kiosk.Notify,
		handler: handler,
		logger:  logger,
		dialFunc: func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			return conn, err
		},
	}
}

// Run connects and serves events until the context is cancelled or the
// reconnect budget is exhausted.
func (n *Notifier) Run(ctx context.Context) error {
	attempts := 0
	delay := time.Duration(n.cfg.InitialDelay) * time.Second
	maxDelay := time.Duration(n.cfg.MaxDelay) * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		delivered, err := n.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}

		// A connection that actually delivered traffic earns back the
		// full reconnect budget.
		if delivered {
			attempts = 0
			delay = time.Duration(n.cfg.InitialDelay) * time.Second
		}

		attempts++
		if attempts >= n.cfg.MaxAttempts {
			// Give up visibly. The kiosk keeps sorting without live
			// notifications; an operator restart restores them.
			n.logger.Error("live notifications unavailable, giving up",
				"attempts", attempts,
				"error", err,
			)
			return fmt.Errorf("notifier: giving up after %d attempts: %w", attempts, err)
		}

		n.logger.Warn("connection lost, reconnecting",
			"attempt", attempts,
			"delay", delay.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// serve holds one connection open, dispatching events until it drops.
// Reports whether the connection delivered at least one message.
func (n *Notifier) serve(ctx context.Context) (bool, error) {
	header := http.Header{}
	if n.token != "" {
		header.Set("Authorization", "Bearer "+n.token)
	}

	conn, err := n.dialFunc(ctx, n.url, header)
	if err != nil {
		return false, fmt.Errorf("dialling %s: %w", n.url, err)
	}
	defer conn.Close()

	n.logger.Info("connected to backend event channel")

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	delivered := false
	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			return delivered, fmt.Errorf("reading event: %w", err)
		}
		delivered = true

		switch event.Type {
		case "keepalive", "pong", "connection":
			// Liveness traffic only.
		default:
			if n.handler != nil {
				n.handler(event)
			}
		}
	}
}
