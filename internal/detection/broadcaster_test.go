package detection

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockRecorder struct {
	calls []recordedDetection
	err   error
}

type recordedDetection struct {
	userID    string
	machineID string
	ref       string
	res       Result
	at        time.Time
}

func (m *mockRecorder) RecordDetection(_ context.Context, userID, machineID, ref string, res Result, at time.Time) error {
	m.calls = append(m.calls, recordedDetection{userID, machineID, ref, res, at})
	return m.err
}

type mockPublisher struct {
	userIDs []string
	entries []HistoryEntry
}

func (m *mockPublisher) PublishDetection(userID string, entry HistoryEntry) {
	m.userIDs = append(m.userIDs, userID)
	m.entries = append(m.entries, entry)
}

type mockTelemetry struct {
	machineIDs []string
}

func (m *mockTelemetry) WriteDetection(machineID string, _ Result) {
	m.machineIDs = append(m.machineIDs, machineID)
}

type mockCompleter struct {
	completed []string
}

func (m *mockCompleter) CompleteDetection(userID string) {
	m.completed = append(m.completed, userID)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestBroadcaster(t *testing.T, opts BroadcasterOptions) *Broadcaster {
	t.Helper()
	if opts.History == nil {
		opts.History = NewHistory(DefaultHistoryCap)
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	b, err := NewBroadcaster(opts)
	if err != nil {
		t.Fatalf("NewBroadcaster() error: %v", err)
	}
	return b
}

func TestNewBroadcaster_RequiresCollaborators(t *testing.T) {
	tests := []struct {
		name string
		opts BroadcasterOptions
	}{
		{"missing ledger", BroadcasterOptions{History: NewHistory(5), Logger: nopLogger{}}},
		{"missing history", BroadcasterOptions{Ledger: &mockRecorder{}, Logger: nopLogger{}}},
		{"missing logger", BroadcasterOptions{Ledger: &mockRecorder{}, History: NewHistory(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBroadcaster(tt.opts); err == nil {
				t.Error("NewBroadcaster() expected error, got nil")
			}
		})
	}
}

func TestBroadcaster_Dispatch(t *testing.T) {
	ledger := &mockRecorder{}
	pub := &mockPublisher{}
	tel := &mockTelemetry{}
	sessions := &mockCompleter{}
	hist := NewHistory(DefaultHistoryCap)

	b := newTestBroadcaster(t, BroadcasterOptions{
		Ledger:    ledger,
		History:   hist,
		Publisher: pub,
		Telemetry: tel,
		Sessions:  sessions,
	})

	fixed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	res := Result{Material: MaterialPlastic, Confidence: 0.92, Points: PointsPlastic}
	entry, err := b.Dispatch(context.Background(), "user-1", "machine-1", res)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if entry.TransactionRef == "" {
		t.Error("expected a transaction ref to be assigned")
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Errorf("entry timestamp = %v, want %v", entry.Timestamp, fixed)
	}

	if len(ledger.calls) != 1 {
		t.Fatalf("ledger recorded %d detections, want 1", len(ledger.calls))
	}
	rec := ledger.calls[0]
	if rec.userID != "user-1" || rec.machineID != "machine-1" || rec.ref != entry.TransactionRef {
		t.Errorf("ledger call = %+v", rec)
	}

	if got := hist.Recent("user-1"); len(got) != 1 || got[0].TransactionRef != entry.TransactionRef {
		t.Errorf("history = %v", got)
	}

	if len(pub.entries) != 1 || pub.userIDs[0] != "user-1" {
		t.Errorf("publisher calls = %v", pub.userIDs)
	}
	if len(tel.machineIDs) != 1 || tel.machineIDs[0] != "machine-1" {
		t.Errorf("telemetry calls = %v", tel.machineIDs)
	}
	if len(sessions.completed) != 1 || sessions.completed[0] != "user-1" {
		t.Errorf("session completions = %v", sessions.completed)
	}
}

func TestBroadcaster_Dispatch_RejectedPersists(t *testing.T) {
	ledger := &mockRecorder{}
	b := newTestBroadcaster(t, BroadcasterOptions{Ledger: ledger})

	res := Result{Material: MaterialRejected, Confidence: 0.15, Points: PointsRejected}
	if _, err := b.Dispatch(context.Background(), "user-1", "machine-1", res); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if len(ledger.calls) != 1 {
		t.Fatalf("rejected detection should still be persisted")
	}
	if ledger.calls[0].res.Points != 0 {
		t.Errorf("rejected points = %d, want 0", ledger.calls[0].res.Points)
	}
}

func TestBroadcaster_Dispatch_LedgerFailureAborts(t *testing.T) {
	ledger := &mockRecorder{err: errors.New("disk full")}
	pub := &mockPublisher{}
	hist := NewHistory(DefaultHistoryCap)

	b := newTestBroadcaster(t, BroadcasterOptions{
		Ledger:    ledger,
		History:   hist,
		Publisher: pub,
	})

	res := Result{Material: MaterialPlastic, Confidence: 0.92, Points: PointsPlastic}
	if _, err := b.Dispatch(context.Background(), "user-1", "machine-1", res); err == nil {
		t.Fatal("Dispatch() expected error on ledger failure")
	}

	if got := hist.Recent("user-1"); len(got) != 0 {
		t.Errorf("history should be untouched after ledger failure, got %v", got)
	}
	if len(pub.entries) != 0 {
		t.Error("publisher should not be notified after ledger failure")
	}
}

func TestBroadcaster_Dispatch_OptionalCollaboratorsNil(t *testing.T) {
	ledger := &mockRecorder{}
	b := newTestBroadcaster(t, BroadcasterOptions{Ledger: ledger})

	res := Result{Material: MaterialNonPlastic, Confidence: 0.8, Points: PointsNonPlastic}
	if _, err := b.Dispatch(context.Background(), "user-1", "machine-1", res); err != nil {
		t.Fatalf("Dispatch() with nil optional collaborators error: %v", err)
	}
}
