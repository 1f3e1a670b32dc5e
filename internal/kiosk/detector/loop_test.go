package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/revend-core/internal/kiosk/actuator"
	"github.com/nerrad567/revend-core/internal/kiosk/debounce"
	"github.com/nerrad567/revend-core/internal/kiosk/handoff"
)

// scriptedSensor replays a fixed sequence of readings, then reports
// "no object" forever.
type scriptedSensor struct {
	mu       sync.Mutex
	readings []float64
	idx      int
}

func (s *scriptedSensor) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.readings) {
		return 999, nil
	}
	v := s.readings[s.idx]
	s.idx++
	return v, nil
}

type stubClassifier struct {
	mu    sync.Mutex
	token handoff.Token
	err   error
	calls int
}

func (s *stubClassifier) RequestClassification() (handoff.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.token, s.err
}

func (s *stubClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSorter struct {
	mu   sync.Mutex
	cmds []actuator.SortCommand
}

func (r *recordingSorter) Sort(cmd actuator.SortCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recordingSorter) recorded() []actuator.SortCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actuator.SortCommand, len(r.cmds))
	copy(out, r.cmds)
	return out
}

func newTestLoop(t *testing.T, sensor DistanceSensor, classifier Classifier, sorter Sorter) *Loop {
	t.Helper()
	l, err := NewLoop(Options{
		Sensor:     sensor,
		Debouncer:  debounce.New(5, 50, 3, 5*time.Second),
		Classifier: classifier,
		Sorter:     sorter,
		Poll:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLoop() error: %v", err)
	}
	return l
}

// runCycles drives the loop directly without the ticker.
func runCycles(l *Loop, n int) {
	for i := 0; i < n; i++ {
		l.cycle()
	}
}

func TestLoop_FullCycle(t *testing.T) {
	sensor := &scriptedSensor{readings: []float64{48, 47, 46}}
	classifier := &stubClassifier{token: handoff.TokenPlastic}
	sorter := &recordingSorter{}

	l := newTestLoop(t, sensor, classifier, sorter)
	runCycles(l, 5)

	if got := classifier.callCount(); got != 1 {
		t.Fatalf("classifier called %d times, want 1", got)
	}
	cmds := sorter.recorded()
	if len(cmds) != 1 || cmds[0] != actuator.SortPlastic {
		t.Errorf("sort commands = %v, want [PLASTIC]", cmds)
	}
}

func TestLoop_NoTriggerWithoutConsecutiveRun(t *testing.T) {
	sensor := &scriptedSensor{readings: []float64{48, 99, 47, 99, 46}}
	classifier := &stubClassifier{token: handoff.TokenPlastic}
	sorter := &recordingSorter{}

	l := newTestLoop(t, sensor, classifier, sorter)
	runCycles(l, 5)

	if got := classifier.callCount(); got != 0 {
		t.Errorf("classifier called %d times, want 0", got)
	}
}

func TestLoop_VerdictHandling(t *testing.T) {
	tests := []struct {
		name     string
		token    handoff.Token
		wantCmds []actuator.SortCommand
	}{
		{"plastic sorts left", handoff.TokenPlastic, []actuator.SortCommand{actuator.SortPlastic}},
		{"can sorts right", handoff.TokenCan, []actuator.SortCommand{actuator.SortCan}},
		{"rejected reaches sorter without movement", handoff.TokenRejected, []actuator.SortCommand{actuator.SortRejected}},
		{"error skips sorter", handoff.TokenError, nil},
		{"no session skips sorter", handoff.TokenNoSession, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor := &scriptedSensor{readings: []float64{40, 40, 40}}
			classifier := &stubClassifier{token: tt.token}
			sorter := &recordingSorter{}

			l := newTestLoop(t, sensor, classifier, sorter)
			runCycles(l, 3)

			got := sorter.recorded()
			if len(got) != len(tt.wantCmds) {
				t.Fatalf("sort commands = %v, want %v", got, tt.wantCmds)
			}
			for i := range got {
				if got[i] != tt.wantCmds[i] {
					t.Errorf("sort commands = %v, want %v", got, tt.wantCmds)
				}
			}
		})
	}
}

func TestLoop_SensorFailureResetsRun(t *testing.T) {
	sensor := &failingSensor{failAt: 2}
	classifier := &stubClassifier{token: handoff.TokenPlastic}
	sorter := &recordingSorter{}

	l := newTestLoop(t, sensor, classifier, sorter)
	runCycles(l, 4)

	// Two good readings, one failure, one good reading: the run never
	// reaches three consecutive samples.
	if got := classifier.callCount(); got != 0 {
		t.Errorf("classifier called %d times, want 0", got)
	}
}

type failingSensor struct {
	calls  int
	failAt int
}

func (s *failingSensor) Read() (float64, error) {
	s.calls++
	if s.calls == s.failAt+1 {
		return 0, errors.New("sensor glitch")
	}
	return 40, nil
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	sensor := &scriptedSensor{}
	l := newTestLoop(t, sensor, &stubClassifier{}, &recordingSorter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
