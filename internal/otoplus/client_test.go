package otoplus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkitdev/mkit-input-voucher/internal/config"
	"github.com/mkitdev/mkit-input-voucher/internal/validate"
)

func testClient(baseURL string) *Client {
	return NewClient(config.OtoplusConfig{BaseURL: baseURL, Timeout: 2 * time.Second})
}

func TestCheckUsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/serials/AB12CD34EF/status" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"serialNumber":"AB12CD34EF","status":"used"}`))
	}))
	defer server.Close()

	status, err := testClient(server.URL).Check(context.Background(), "AB12CD34EF")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if status != validate.VerificationUsed {
		t.Errorf("Expected used, got %s", status)
	}
}

func TestCheckUnused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"unused"}`))
	}))
	defer server.Close()

	status, err := testClient(server.URL).Check(context.Background(), "AB12CD34EF")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if status != validate.VerificationUnused {
		t.Errorf("Expected unused, got %s", status)
	}
}

func TestCheckUnrecognizedVerdictIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"quarantined"}`))
	}))
	defer server.Close()

	status, err := testClient(server.URL).Check(context.Background(), "AB12CD34EF")
	if err != nil {
		t.Fatalf("Unrecognized verdict must not be an error: %v", err)
	}
	if status != validate.VerificationUnknown {
		t.Errorf("Expected unknown, got %s", status)
	}
}

func TestCheckServerErrorIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Check(context.Background(), "AB12CD34EF"); err == nil {
		t.Fatal("Non-200 response should surface as an error")
	}
}

func TestCheckUnreachableIsError(t *testing.T) {
	// closed server: connection refused
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	if _, err := testClient(server.URL).Check(context.Background(), "AB12CD34EF"); err == nil {
		t.Fatal("Unreachable upstream should surface as an error")
	}
}

func TestCheckHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"status":"unused"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := testClient(server.URL).Check(ctx, "AB12CD34EF"); err == nil {
		t.Fatal("Context deadline should abort the request")
	}
}
