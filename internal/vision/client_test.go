package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/infrastructure/config"
)

func newTestClient(url string, minConfidence float64) *Client {
	return NewClient(config.VisionConfig{
		URL:           url,
		Timeout:       5,
		MinConfidence: minConfidence,
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		wantMaterial detection.Material
		wantPoints   int
	}{
		{"plastic accepted", `{"material":"PLASTIC","confidence":0.92}`, detection.MaterialPlastic, 2},
		{"can accepted", `{"material":"CAN","confidence":0.85}`, detection.MaterialNonPlastic, 1},
		{"rejected by service", `{"material":"REJECTED","confidence":0.9}`, detection.MaterialRejected, 0},
		{"below confidence threshold", `{"material":"PLASTIC","confidence":0.2}`, detection.MaterialRejected, 0},
		{"unknown label declined", `{"material":"GLASS","confidence":0.95}`, detection.MaterialRejected, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.response)) //nolint:errcheck
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, 0.3)
			res, err := c.Classify(context.Background(), []byte("image-bytes"), "machine-1")
			if err != nil {
				t.Fatalf("Classify() error: %v", err)
			}
			if res.Material != tt.wantMaterial {
				t.Errorf("material = %v, want %v", res.Material, tt.wantMaterial)
			}
			if res.Points != tt.wantPoints {
				t.Errorf("points = %d, want %d", res.Points, tt.wantPoints)
			}
		})
	}
}

func TestClassify_SendsImageAndCaller(t *testing.T) {
	var got classifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"material":"PLASTIC","confidence":0.9}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0.3)
	if _, err := c.Classify(context.Background(), []byte("raw"), "machine-1"); err != nil {
		t.Fatalf("Classify() error: %v", err)
	}

	if got.CallerID != "machine-1" {
		t.Errorf("caller_id = %q, want machine-1", got.CallerID)
	}
	if want := base64.StdEncoding.EncodeToString([]byte("raw")); got.ImageBase64 != want {
		t.Errorf("image_base64 = %q, want %q", got.ImageBase64, want)
	}
}

func TestClassify_Unavailable(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		c := newTestClient("http://127.0.0.1:1", 0.3)
		_, err := c.Classify(context.Background(), []byte("image"), "machine-1")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("Classify() error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := newTestClient(srv.URL, 0.3)
		_, err := c.Classify(context.Background(), []byte("image"), "machine-1")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("Classify() error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json")) //nolint:errcheck
		}))
		defer srv.Close()

		c := newTestClient(srv.URL, 0.3)
		_, err := c.Classify(context.Background(), []byte("image"), "machine-1")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("Classify() error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"material":"PLASTIC","confidence":0.9}`)) //nolint:errcheck
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		c := newTestClient(srv.URL, 0.3)
		_, err := c.Classify(ctx, []byte("image"), "machine-1")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("Classify() error = %v, want ErrUnavailable", err)
		}
	})
}
