package coordinator

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nerrad567/revend-core/internal/infrastructure/config"
	"github.com/nerrad567/revend-core/internal/kiosk/handoff"
)

// transportRetryDelay is the pause between attempts to open the detector
// link. Detectors boot slower than the coordinator, so the first attempts
// often find nothing listening yet.
const transportRetryDelay = 2 * time.Second

// OpenTransport opens the line transport to the detector, retrying until
// it succeeds or the context is cancelled.
//
// Serial transports open the device file directly; a tty configured by
// the OS (raw mode, matching baud) presents the same line-oriented
// io.ReadWriter a TCP link does.
func OpenTransport(ctx context.Context, cfg config.TransportConfig, logger Logger) (handoff.Conn, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	for {
		conn, err := openOnce(cfg)
		if err == nil {
			return conn, nil
		}

		logger.Warn("detector link unavailable, retrying",
			"type", cfg.Type,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("opening detector link: %w", err)
		case <-time.After(transportRetryDelay):
		}
	}
}

func openOnce(cfg config.TransportConfig) (handoff.Conn, error) {
	switch cfg.Type {
	case "tcp":
		conn, err := net.Dial("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("dialling %s: %w", cfg.Address, err)
		}
		return conn, nil
	case "serial", "":
		f, err := os.OpenFile(cfg.Device, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}
