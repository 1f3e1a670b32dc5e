package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/infrastructure/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.KioskConfig{
		MachineID:  "machine-1",
		BackendURL: url,
		APIToken:   "kiosk-token",
	})
}

func TestClient_SessionActive(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"active":true,"user_id":"user-1"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	active, err := c.SessionActive(context.Background())
	if err != nil {
		t.Fatalf("SessionActive() error: %v", err)
	}
	if !active {
		t.Error("SessionActive() = false, want true")
	}
	if gotPath != "/api/v1/kiosk/machines/machine-1/session" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer kiosk-token" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}

func TestClient_SessionActive_Unavailable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.SessionActive(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("SessionActive() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestClient_Classify(t *testing.T) {
	var got classifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"status":"success","material":"PLASTIC","confidence":0.91,"points":2,"transaction_ref":"txn-1"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Classify(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}

	if res.Material != detection.MaterialPlastic || res.Points != 2 {
		t.Errorf("result = %+v", res)
	}
	if got.MachineID != "machine-1" {
		t.Errorf("machine_id = %q", got.MachineID)
	}
	if got.ImageBase64 == "" {
		t.Error("image_base64 missing from request")
	}
}

func TestClient_Classify_BackendFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "error status in body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"error"}`)) //nolint:errcheck
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json")) //nolint:errcheck
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.Classify(context.Background(), []byte("frame"))
			if !errors.Is(err, ErrBackendUnavailable) {
				t.Errorf("Classify() error = %v, want ErrBackendUnavailable", err)
			}
		})
	}
}
