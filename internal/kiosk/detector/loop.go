// Package detector runs the machine-side detection cycle.
//
// The cycle is a single sequential loop: poll the distance sensor,
// debounce readings into a confirmed object, hand off to the
// coordinator for a verdict, drive the actuator. There is deliberately
// no internal concurrency; physical actuation must be strictly
// serialised, and the loop only ever suspends at the sensor-poll
// interval and the verdict wait.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/revend-core/internal/kiosk/actuator"
	"github.com/nerrad567/revend-core/internal/kiosk/debounce"
	"github.com/nerrad567/revend-core/internal/kiosk/handoff"
)

// DistanceSensor reads one distance measurement in centimetres.
// Implementations talk to the ultrasonic or time-of-flight hardware.
type DistanceSensor interface {
	Read() (float64, error)
}

// Classifier resolves one confirmed object into a verdict token.
// Implemented by the handoff detector.
type Classifier interface {
	RequestClassification() (handoff.Token, error)
}

// Sorter drives the physical flap. Implemented by the actuator
// controller.
type Sorter interface {
	Sort(cmd actuator.SortCommand) error
}

// Logger defines the logging interface for the detector loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loop is the sequential detection cycle.
type Loop struct {
	sensor     DistanceSensor
	debouncer  *debounce.Debouncer
	classifier Classifier
	sorter     Sorter
	poll       time.Duration
	logger     Logger

	now func() time.Time
}

// Options holds the loop's collaborators.
type Options struct {
	Sensor     DistanceSensor
	Debouncer  *debounce.Debouncer
	Classifier Classifier
	Sorter     Sorter

	// Poll is the sensor sampling interval.
	Poll time.Duration

	Logger Logger
}

// NewLoop creates a detection loop.
func NewLoop(opts Options) (*Loop, error) {
	if opts.Sensor == nil {
		return nil, fmt.Errorf("distance sensor is required")
	}
	if opts.Debouncer == nil {
		return nil, fmt.Errorf("debouncer is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Sorter == nil {
		return nil, fmt.Errorf("sorter is required")
	}
	if opts.Poll <= 0 {
		opts.Poll = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Loop{
		sensor:     opts.Sensor,
		debouncer:  opts.Debouncer,
		classifier: opts.Classifier,
		sorter:     opts.Sorter,
		poll:       opts.Poll,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// Run polls the sensor until the context is cancelled. Every failure
// path inside a cycle returns the loop to idle; nothing here is fatal
// to the process.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	l.logger.Info("detection loop started", "poll_interval", l.poll.String())

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("detection loop stopped")
			return nil
		case <-ticker.C:
			l.cycle()
		}
	}
}

// cycle runs one sensor poll and, when an object is confirmed, the full
// classify-and-sort sequence.
func (l *Loop) cycle() {
	cm, err := l.sensor.Read()
	if err != nil {
		l.logger.Warn("sensor read failed", "error", err)
		l.debouncer.Reset()
		return
	}

	if !l.debouncer.Observe(debounce.DistanceSample{CM: cm, At: l.now()}) {
		return
	}

	l.logger.Info("object confirmed", "distance_cm", cm)

	token, err := l.classifier.RequestClassification()
	if err != nil {
		l.logger.Error("handoff failed", "error", err)
		l.debouncer.Reset()
		return
	}

	l.handleVerdict(token)
	l.debouncer.Reset()
}

// handleVerdict drives the actuator for sortable verdicts and logs the
// rest. NO_SESSION and ERROR are kept apart from REJECTED in the logs
// so an operator can tell "try again" from "item declined".
func (l *Loop) handleVerdict(token handoff.Token) {
	var cmd actuator.SortCommand
	switch token {
	case handoff.TokenPlastic:
		cmd = actuator.SortPlastic
	case handoff.TokenCan:
		cmd = actuator.SortCan
	case handoff.TokenRejected:
		cmd = actuator.SortRejected
	case handoff.TokenNoSession:
		l.logger.Warn("no active session for this machine, item not processed")
		return
	default:
		l.logger.Warn("classification error, item not processed")
		return
	}

	if err := l.sorter.Sort(cmd); err != nil {
		l.logger.Error("actuation failed", "command", cmd.String(), "error", err)
	}
}
