package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder persists a completed detection to the durable transaction
// ledger. Implemented by the ledger repository.
type Recorder interface {
	RecordDetection(ctx context.Context, userID, machineID, ref string, res Result, at time.Time) error
}

// Publisher fans a detection event out to live subscribers for a user.
// Implementations must not block: a slow or absent subscriber must never
// delay the detection pipeline. Implemented by the API WebSocket hub.
type Publisher interface {
	PublishDetection(userID string, entry HistoryEntry)
}

// TelemetryWriter records detection metrics to the time-series store.
// Optional; a nil writer disables telemetry.
type TelemetryWriter interface {
	WriteDetection(machineID string, res Result)
}

// SessionCompleter is notified when a detection completes for a user, so
// single-use session policies can end the session. Implemented by the
// session manager.
type SessionCompleter interface {
	CompleteDetection(userID string)
}

// Logger is the minimal logging interface the broadcaster needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Broadcaster coordinates what happens after every classification:
// persist the transaction, append to the bounded history, then push the
// event to live subscribers. Pure transport failures never reach the
// broadcaster - the gateway surfaces those as errors before a Result
// exists.
type Broadcaster struct {
	ledger    Recorder
	history   *History
	publisher Publisher
	telemetry TelemetryWriter
	sessions  SessionCompleter
	logger    Logger
	now       func() time.Time
}

// BroadcasterOptions holds the broadcaster's collaborators.
type BroadcasterOptions struct {
	Ledger    Recorder
	History   *History
	Publisher Publisher

	// Telemetry is optional; nil disables time-series writes.
	Telemetry TelemetryWriter

	// Sessions is optional; nil disables single-use session completion.
	Sessions SessionCompleter

	Logger Logger
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(opts BroadcasterOptions) (*Broadcaster, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Broadcaster{
		ledger:    opts.Ledger,
		history:   opts.History,
		publisher: opts.Publisher,
		telemetry: opts.Telemetry,
		sessions:  opts.Sessions,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// Dispatch handles one completed classification for a user, in order:
//
//  1. Persist the transaction (REJECTED included - the item was
//     physically processed, it just earns zero points).
//  2. Append to the user's bounded in-memory history.
//  3. Publish to live subscribers (non-blocking fan-out).
//
// A ledger failure aborts the dispatch: without a durable record there is
// nothing truthful to show the user.
func (b *Broadcaster) Dispatch(ctx context.Context, userID, machineID string, res Result) (HistoryEntry, error) {
	entry := HistoryEntry{
		Material:       res.Material,
		Confidence:     res.Confidence,
		Points:         res.Points,
		Timestamp:      b.now().UTC(),
		TransactionRef: uuid.NewString(),
	}

	if err := b.ledger.RecordDetection(ctx, userID, machineID, entry.TransactionRef, res, entry.Timestamp); err != nil {
		return HistoryEntry{}, fmt.Errorf("recording transaction: %w", err)
	}

	b.history.Append(userID, entry)

	if b.publisher != nil {
		b.publisher.PublishDetection(userID, entry)
	}

	if b.telemetry != nil {
		b.telemetry.WriteDetection(machineID, res)
	}

	if b.sessions != nil {
		b.sessions.CompleteDetection(userID)
	}

	b.logger.Info("detection dispatched",
		"user_id", userID,
		"machine_id", machineID,
		"material", res.Material.String(),
		"points", res.Points,
		"transaction_ref", entry.TransactionRef,
	)

	return entry, nil
}
