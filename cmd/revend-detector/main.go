// Revend Detector - machine-side detection loop
//
// This is the entry point for the detector unit: the single sequential
// cycle that polls the proximity sensor, debounces readings into a
// confirmed insertion, asks the coordinator for a verdict over the
// handoff link, and drives the sorting flap.
//
// Hardware adapters (line-oriented sensor and servo controller) live
// here rather than in the library packages: they are deployment detail,
// and the loop only sees the interfaces.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/revend-core/internal/infrastructure/config"
	"github.com/nerrad567/revend-core/internal/infrastructure/logging"
	"github.com/nerrad567/revend-core/internal/kiosk/actuator"
	"github.com/nerrad567/revend-core/internal/kiosk/debounce"
	"github.com/nerrad567/revend-core/internal/kiosk/detector"
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
	log.Info("starting Revend Detector", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log = log.With("machine_id", cfg.Kiosk.MachineID)
	log.Info("configuration loaded", "path", configPath)

	// Proximity sensor
	sensor, err := openSensor(cfg.Kiosk.Sensor)
	if err != nil {
		return fmt.Errorf("opening distance sensor: %w", err)
	}
	defer sensor.Close() //nolint:errcheck // read-only device handle
	log.Info("distance sensor open", "device", cfg.Kiosk.Sensor.Device)

	// Sorting flap
	driver, err := openActuator(cfg.Kiosk.Actuator)
	if err != nil {
		return fmt.Errorf("opening actuator: %w", err)
	}
	defer driver.Close() //nolint:errcheck // write-only device handle
	log.Info("actuator open", "device", cfg.Kiosk.Actuator.Device)

	hold := time.Duration(cfg.Kiosk.Actuator.Hold) * time.Second
	sorter := actuator.NewController(driver, hold, log)

	// Coordinator link
	conn, err := openCoordinatorLink(ctx, cfg.Kiosk.Transport, log)
	if err != nil {
		return fmt.Errorf("opening coordinator link: %w", err)
	}
	if closer, ok := conn.(io.Closer); ok {
		defer closer.Close() //nolint:errcheck // link closes with the process
	}
	log.Info("coordinator link open", "type", cfg.Kiosk.Transport.Type)

	classifier := handoff.NewDetector(conn, cfg.Kiosk.GetClassificationTimeout(), log)

	debouncer := debounce.New(
		cfg.Kiosk.Sensor.MinDistanceCM,
		cfg.Kiosk.Sensor.RangeLimitCM,
		cfg.Kiosk.Sensor.RequiredConsecutive,
		time.Duration(cfg.Kiosk.Sensor.DebounceWindow)*time.Second,
	)

	loop, err := detector.NewLoop(detector.Options{
		Sensor:     sensor,
		Debouncer:  debouncer,
		Classifier: classifier,
		Sorter:     sorter,
		Poll:       time.Duration(cfg.Kiosk.Sensor.PollInterval) * time.Millisecond,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating detection loop: %w", err)
	}

	log.Info("initialisation complete, entering detection cycle")
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("detection loop: %w", err)
	}

	log.Info("Revend Detector stopped")
	return nil
}

// lineSensor reads distance measurements from a device streaming one
// reading per line ("23.4\n"). Blank and malformed lines are skipped so
// a glitchy serial link degrades to slower sampling, not loop failure.
type lineSensor struct {
	f       *os.File
	scanner *bufio.Scanner
}

func openSensor(cfg config.SensorConfig) (*lineSensor, error) {
	f, err := os.OpenFile(cfg.Device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
	}
	return &lineSensor{f: f, scanner: bufio.NewScanner(f)}, nil
}

func (s *lineSensor) Read() (float64, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		cm, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		return cm, nil
	}
	if err := s.scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading sensor: %w", err)
	}
	return 0, fmt.Errorf("sensor stream closed")
}

func (s *lineSensor) Close() error {
	return s.f.Close()
}

// lineDriver commands the servo controller with one position per line
// ("LEFT\n", "CENTER\n", "RIGHT\n").
type lineDriver struct {
	f *os.File
}

func openActuator(cfg config.ActuatorConfig) (*lineDriver, error) {
	f, err := os.OpenFile(cfg.Device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
	}
	return &lineDriver{f: f}, nil
}

func (d *lineDriver) Move(pos actuator.Position) error {
	if _, err := fmt.Fprintf(d.f, "%s\n", pos); err != nil {
		return fmt.Errorf("commanding %s: %w", pos, err)
	}
	return nil
}

func (d *lineDriver) Close() error {
	return d.f.Close()
}

// openCoordinatorLink establishes the handoff link. Serial transports
// share the coordinator's device; tcp transports listen and accept one
// coordinator connection.
func openCoordinatorLink(ctx context.Context, cfg config.TransportConfig, log *logging.Logger) (handoff.Conn, error) {
	switch cfg.Type {
	case "serial", "":
		f, err := os.OpenFile(cfg.Device, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
		}
		return f, nil
	case "tcp":
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", cfg.Address, err)
		}
		defer listener.Close() //nolint:errcheck // one connection, listener no longer needed

		log.Info("waiting for coordinator connection", "address", cfg.Address)

		// Abort the accept if shutdown arrives first.
		go func() {
			<-ctx.Done()
			listener.Close() //nolint:errcheck // unblocks Accept
		}()

		conn, err := listener.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting coordinator connection: %w", err)
		}
		log.Info("coordinator connected", "remote", conn.RemoteAddr().String())
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

// getConfigPath returns the configuration file path.
// Uses REVEND_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("REVEND_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
