// Package vision is the gateway to the remote image classification
// service.
//
// The classifier is treated as an unreliable dependency: every call is
// bounded by a timeout, and any transport failure surfaces as
// ErrUnavailable rather than a classification. A low-confidence answer
// is different - the service responded, the kiosk just declines the
// item, so the gateway folds it into a rejected Result.
package vision

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

// ErrUnavailable is returned when the classification service could not
// be reached or did not produce a usable response. Callers must not
// treat this as a rejection: no material judgement was made.
var ErrUnavailable = errors.New("vision: classification service unavailable")

// classifyRequest is the JSON body sent to the classification service.
type classifyRequest struct {
	ImageBase64 string `json:"image_base64"`
	CallerID    string `json:"caller_id,omitempty"`
}

// classifyResponse is the JSON body the classification service returns.
type classifyResponse struct {
	Material   string  `json:"material"`
	Confidence float64 `json:"confidence"`
}

// Client calls the remote classification service.
type Client struct {
	url           string
	minConfidence float64
	httpClient    *http.Client
}

// NewClient creates a classification gateway from config.
func NewClient(cfg config.VisionConfig) *Client {
	return &Client{
		url:           cfg.URL,
		minConfidence: cfg.MinConfidence,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Classify submits an image and returns the detection outcome.
//
// Parameters:
//   - ctx: cancels the request; the client timeout applies regardless
//   - image: raw captured image bytes
//   - callerID: machine identifier, passed through for service-side logs
//
// Low-confidence answers come back as a rejected Result with the
// service's reported confidence, not as an error. ErrUnavailable covers
// everything else: timeouts, connection failures, non-2xx statuses and
// unparseable bodies.
func (c *Client) Classify(ctx context.Context, image []byte, callerID string) (detection.Result, error) {
	body, err := json.Marshal(classifyRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		CallerID:    callerID,
	})
	if err != nil {
		return detection.Result{}, fmt.Errorf("encoding classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return detection.Result{}, fmt.Errorf("building classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return detection.Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return detection.Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var cr classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return detection.Result{}, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	material := detection.ParseMaterial(cr.Material)
	if cr.Confidence < c.minConfidence {
		material = detection.MaterialRejected
	}

	return detection.Result{
		Material:   material,
		Confidence: cr.Confidence,
		Points:     material.Points(),
	}, nil
}
