package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestGateway(t *testing.T, handler http.Handler) (*Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	gw := NewGateway(map[string]ProviderConfig{
		"ups": {Endpoint: server.URL, APIKey: "test-key"},
	}, NewBreaker(BreakerOptions{FailureThreshold: 2, FailureWindow: time.Minute, Cooldown: time.Minute}, NewMemoryStore()), 5*time.Second)
	return gw, server
}

func TestGatewayCreateShipment(t *testing.T) {
	var gotAuth string
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/shipments" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var req ShipmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.OrderNo != "SO-1001" || len(req.Items) != 1 {
			t.Errorf("unexpected request payload %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tracking_number": "1Z999",
			"label_url":       "https://labels.example.com/1Z999.pdf",
		})
	}))

	result, err := gw.CreateShipment(context.Background(), "UPS", ShipmentRequest{
		OrderNo: "SO-1001",
		Items:   []ShipmentLine{{SKU: "WIDGET-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	if result.TrackingNumber != "1Z999" {
		t.Fatalf("expected tracking number 1Z999, got %q", result.TrackingNumber)
	}
	if result.LabelURL == "" {
		t.Fatal("expected label url")
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestGatewayCreateShipmentMissingTracking(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"label_url": "x"})
	}))
	_, err := gw.CreateShipment(context.Background(), "ups", ShipmentRequest{
		OrderNo: "SO-1",
		Items:   []ShipmentLine{{SKU: "A", Quantity: 1}},
	})
	if !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("expected ErrResponseInvalid, got %v", err)
	}
}

func TestGatewayFailuresOpenBreaker(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	req := ShipmentRequest{OrderNo: "SO-1", Items: []ShipmentLine{{SKU: "A", Quantity: 1}}}

	for i := 0; i < 2; i++ {
		if _, err := gw.CreateShipment(context.Background(), "ups", req); !errors.Is(err, ErrRequestFailed) {
			t.Fatalf("expected ErrRequestFailed, got %v", err)
		}
	}
	// 阈值后快速拒绝，不再打到承运商
	if _, err := gw.CreateShipment(context.Background(), "ups", req); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestGatewayTrack(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tracking/1Z999" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "In_Transit"})
	}))
	result, err := gw.Track(context.Background(), "ups", "1Z999")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if result.Status != "in_transit" {
		t.Fatalf("expected normalized status in_transit, got %q", result.Status)
	}
}

func TestGatewayUnknownProvider(t *testing.T) {
	gw := NewGateway(nil, nil, time.Second)
	_, err := gw.CreateShipment(context.Background(), "dhl", ShipmentRequest{
		OrderNo: "SO-1",
		Items:   []ShipmentLine{{SKU: "A", Quantity: 1}},
	})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}
