package coordinator

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/revend-core/internal/infrastructure/config"
)

func TestSnapshotCamera_Capture(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(frame) //nolint:errcheck
	}))
	defer srv.Close()

	cam := NewSnapshotCamera(config.CameraConfig{URL: srv.URL, Timeout: 2})
	got, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("Capture() = %v, want %v", got, frame)
	}
}

func TestSnapshotCamera_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "empty frame",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cam := NewSnapshotCamera(config.CameraConfig{URL: srv.URL, Timeout: 2})
			_, err := cam.Capture(context.Background())
			if !errors.Is(err, ErrCaptureFailed) {
				t.Errorf("Capture() error = %v, want ErrCaptureFailed", err)
			}
		})
	}
}

func TestSnapshotCamera_UnreachableCamera(t *testing.T) {
	cam := NewSnapshotCamera(config.CameraConfig{URL: "http://127.0.0.1:1/capture", Timeout: 1})
	if _, err := cam.Capture(context.Background()); !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("Capture() error = %v, want ErrCaptureFailed", err)
	}
}
