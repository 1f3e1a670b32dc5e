package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/revend-core/internal/infrastructure/config"
)

// ErrCaptureFailed marks a camera fault. The resolver answers ERROR for
// these; the item was never classified.
var ErrCaptureFailed = errors.New("coordinator: camera capture failed")

// maxImageBytes caps a single snapshot. Anything larger is a
// misconfigured camera, not a photo of a bottle.
const maxImageBytes = 3 << 20

// SnapshotCamera captures frames from an HTTP snapshot endpoint, the
// interface ESP32-CAM style modules expose: one GET, one JPEG back.
// It implements Camera.
type SnapshotCamera struct {
	url        string
	httpClient *http.Client
}

// NewSnapshotCamera creates a camera client for the configured endpoint.
func NewSnapshotCamera(cfg config.CameraConfig) *SnapshotCamera {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SnapshotCamera{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Capture fetches one frame. All failure modes fold into
// ErrCaptureFailed so callers need a single check.
func (c *SnapshotCamera) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrCaptureFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: camera returned %d", ErrCaptureFailed, resp.StatusCode)
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading frame: %w", ErrCaptureFailed, err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCaptureFailed)
	}
	if len(image) > maxImageBytes {
		return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrCaptureFailed, maxImageBytes)
	}

	return image, nil
}
