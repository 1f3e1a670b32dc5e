// Revend Kiosk - machine unit controller
//
// This is the entry point for the kiosk coordinator. It owns the line
// transport to the detector, the snapshot camera, the backend HTTP
// client, MQTT health reporting, and the WebSocket subscription that
// lets the kiosk display react when a user scans in.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/revend-core/internal/infrastructure/config"
	"github.com/nerrad567/revend-core/internal/infrastructure/logging"
	"github.com/nerrad567/revend-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/revend-core/internal/kiosk/coordinator"
	"github.com/nerrad567/revend-core/internal/kiosk/handoff"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/kiosk.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Revend Kiosk", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log = log.With("machine_id", cfg.Kiosk.MachineID)
	log.Info("configuration loaded", "path", configPath)

	// Backend client and camera feed the resolver, which turns each
	// detector READY into exactly one verdict token.
	backend := coordinator.NewClient(cfg.Kiosk)
	camera := coordinator.NewSnapshotCamera(cfg.Kiosk.Camera)
	resolver := coordinator.NewResolver(backend, camera, log)

	// MQTT health reporting (optional). The broker's LWT flips the
	// machine offline if this process dies.
	var heartbeat *coordinator.Heartbeat
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.ConnectMachine(cfg.MQTT, cfg.Kiosk.MachineID)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		)

		heartbeat = coordinator.NewHeartbeat(mqttClient, cfg.Kiosk.MachineID, time.Minute, log)
		go func() {
			if hbErr := heartbeat.Run(ctx); hbErr != nil {
				log.Error("heartbeat stopped", "error", hbErr)
			}
		}()
	} else {
		log.Info("MQTT disabled, machine status reporting off")
	}

	// Live session notifications drive the kiosk display. Losing them
	// is visible but not fatal: the sorting loop keeps working.
	notifier := coordinator.NewNotifier(cfg.Kiosk, func(event coordinator.Event) {
		log.Info("session event", "type", event.Type)
	}, log)
	go func() {
		if notifyErr := notifier.Run(ctx); notifyErr != nil {
			log.Warn("live notifications stopped", "error", notifyErr)
		}
	}()

	// Open the detector link. Detectors boot slower than we do, so this
	// retries until the link is up or we're told to shut down.
	conn, err := coordinator.OpenTransport(ctx, cfg.Kiosk.Transport, log)
	if err != nil {
		return err
	}
	log.Info("detector link open",
		"type", cfg.Kiosk.Transport.Type,
		"device", cfg.Kiosk.Transport.Device,
		"address", cfg.Kiosk.Transport.Address,
	)

	// Count sorted items into the heartbeat telemetry.
	var loopResolver handoff.Resolver = resolver
	if heartbeat != nil {
		loopResolver = countingResolver{inner: resolver, heartbeat: heartbeat}
	}

	handoffLoop := handoff.NewCoordinator(conn, loopResolver, log)

	log.Info("initialisation complete, serving detector requests")
	if err := handoffLoop.Run(ctx); err != nil {
		return fmt.Errorf("handoff loop: %w", err)
	}

	log.Info("Revend Kiosk stopped")
	return nil
}

// countingResolver bumps the heartbeat's detection counter whenever the
// wrapped resolver produces a sorting verdict.
type countingResolver struct {
	inner     handoff.Resolver
	heartbeat *coordinator.Heartbeat
}

func (r countingResolver) Resolve(ctx context.Context) handoff.Token {
	token := r.inner.Resolve(ctx)
	switch token {
	case handoff.TokenPlastic, handoff.TokenCan, handoff.TokenRejected:
		r.heartbeat.RecordDetection()
	}
	return token
}

// getConfigPath returns the configuration file path.
// Uses REVEND_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("REVEND_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
