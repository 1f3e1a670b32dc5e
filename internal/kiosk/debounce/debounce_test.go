package debounce

import (
	"testing"
	"time"
)

func samplesAt(base time.Time, interval time.Duration, distances ...float64) []DistanceSample {
	out := make([]DistanceSample, len(distances))
	for i, cm := range distances {
		out[i] = DistanceSample{CM: cm, At: base.Add(time.Duration(i) * interval)}
	}
	return out
}

func TestDebouncer_Observe(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		distances []float64
		wantFires []int // indexes at which a trigger fires
	}{
		{
			name:      "three consecutive in band fires once",
			distances: []float64{48, 47, 46},
			wantFires: []int{2},
		},
		{
			name:      "out of band sample resets run",
			distances: []float64{48, 47, 60, 46, 45},
			wantFires: nil,
		},
		{
			name:      "run rebuilt after reset fires",
			distances: []float64{48, 47, 60, 46, 45, 44},
			wantFires: []int{5},
		},
		{
			name:      "too close is noise",
			distances: []float64{2, 3, 4},
			wantFires: nil,
		},
		{
			name:      "too far is no object",
			distances: []float64{80, 90, 100},
			wantFires: nil,
		},
		{
			name:      "band edges are in band",
			distances: []float64{5, 50, 30},
			wantFires: []int{2},
		},
		{
			name:      "continuous presence fires once inside window",
			distances: []float64{40, 40, 40, 40, 40, 40},
			wantFires: []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(5, 50, 3, 5*time.Second)

			var fires []int
			for i, s := range samplesAt(base, 100*time.Millisecond, tt.distances...) {
				if d.Observe(s) {
					fires = append(fires, i)
				}
			}

			if len(fires) != len(tt.wantFires) {
				t.Fatalf("fired at %v, want %v", fires, tt.wantFires)
			}
			for i := range fires {
				if fires[i] != tt.wantFires[i] {
					t.Errorf("fired at %v, want %v", fires, tt.wantFires)
					break
				}
			}
		})
	}
}

func TestDebouncer_WindowBetweenTriggers(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	d := New(5, 50, 3, 5*time.Second)

	// First trigger at base+200ms.
	for _, s := range samplesAt(base, 100*time.Millisecond, 40, 40, 40) {
		d.Observe(s)
	}

	// Object still present 1s later: run saturates but the window blocks.
	inWindow := samplesAt(base.Add(time.Second), 100*time.Millisecond, 40, 40, 40, 40)
	for i, s := range inWindow {
		if d.Observe(s) {
			t.Errorf("trigger fired inside debounce window at sample %d", i)
		}
	}

	// Once the window elapses the saturated run fires immediately.
	after := DistanceSample{CM: 40, At: base.Add(6 * time.Second)}
	if !d.Observe(after) {
		t.Error("trigger should fire once the debounce window has elapsed")
	}
}

func TestDebouncer_Reset(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	d := New(5, 50, 3, 5*time.Second)

	d.Observe(DistanceSample{CM: 40, At: base})
	d.Observe(DistanceSample{CM: 40, At: base.Add(100 * time.Millisecond)})
	d.Reset()

	// The run starts over after a reset.
	if d.Observe(DistanceSample{CM: 40, At: base.Add(200 * time.Millisecond)}) {
		t.Error("trigger should not fire on first sample after Reset")
	}
}

func TestNew_ClampsRequired(t *testing.T) {
	d := New(5, 50, 0, time.Second)
	if !d.Observe(DistanceSample{CM: 40, At: time.Now()}) {
		t.Error("required below 1 should clamp to 1 and fire on a single sample")
	}
}
