// Package coordinator implements the kiosk-side coordinator: it answers
// the detector's READY requests by checking the machine's session,
// capturing an image and asking the backend to classify it, and keeps
// the backend informed of the machine's health.
package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/infrastructure/config"
)

// ErrBackendUnavailable is returned when the backend could not be
// reached or did not produce a usable response.
var ErrBackendUnavailable = errors.New("coordinator: backend unavailable")

// defaultRequestTimeout bounds backend calls that have no tighter bound
// from the caller's context.
const defaultRequestTimeout = 30 * time.Second

// Client calls the backend's kiosk-facing endpoints.
type Client struct {
	baseURL    string
	token      string
	machineID  string
	httpClient *http.Client
}

// NewClient creates a backend client from kiosk config.
func NewClient(cfg config.KioskConfig) *Client {
	return &Client{
		baseURL:   cfg.BackendURL,
		token:     cfg.APIToken,
		machineID: cfg.MachineID,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// sessionStatusResponse is the backend's answer to a session lookup.
type sessionStatusResponse struct {
	Active bool   `json:"active"`
	UserID string `json:"user_id,omitempty"`
}

// classifyRequest asks the backend to classify one captured image.
type classifyRequest struct {
	MachineID   string `json:"machine_id"`
	ImageBase64 string `json:"image_base64"`
}

// classifyResponse is the backend's classification verdict. The backend
// has already recorded the transaction by the time this returns.
type classifyResponse struct {
	Status         string  `json:"status"`
	Material       string  `json:"material"`
	Confidence     float64 `json:"confidence"`
	Points         int     `json:"points"`
	TransactionRef string  `json:"transaction_ref"`
}

// SessionActive reports whether a user currently holds this machine.
func (c *Client) SessionActive(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/kiosk/machines/%s/session", c.baseURL, c.machineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building session request: %w", err)
	}
	c.authorise(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var sr sessionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return false, fmt.Errorf("%w: decoding response: %v", ErrBackendUnavailable, err)
	}
	return sr.Active, nil
}

// Classify submits a captured image for the user at this machine. The
// backend resolves the user from the machine binding, classifies the
// image, records the transaction and pushes the live update; the kiosk
// only needs the material back to drive the actuator.
func (c *Client) Classify(ctx context.Context, image []byte) (detection.Result, error) {
	body, err := json.Marshal(classifyRequest{
		MachineID:   c.machineID,
		ImageBase64: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return detection.Result{}, fmt.Errorf("encoding classify request: %w", err)
	}

	url := c.baseURL + "/api/v1/kiosk/classify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return detection.Result{}, fmt.Errorf("building classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorise(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return detection.Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return detection.Result{}, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var cr classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return detection.Result{}, fmt.Errorf("%w: decoding response: %v", ErrBackendUnavailable, err)
	}
	if cr.Status != "success" {
		return detection.Result{}, fmt.Errorf("%w: backend reported %q", ErrBackendUnavailable, cr.Status)
	}

	return detection.Result{
		Material:   detection.ParseMaterial(cr.Material),
		Confidence: cr.Confidence,
		Points:     cr.Points,
	}, nil
}

// authorise attaches the kiosk API token.
func (c *Client) authorise(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
