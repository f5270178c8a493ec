package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, 5*time.Second, zerolog.Nop()), srv
}

func TestRunSuccess(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %q, want /execute", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["source_code"] != "print(1+2)" || req["language"] != "python" || req["stdin"] != "1\n2" {
			t.Errorf("unexpected request payload: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"output": "3\n"})
	})
	defer srv.Close()

	out, err := client.Run(context.Background(), "print(1+2)", "python", "1\n2")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out != "3\n" {
		t.Errorf("output = %q, want %q", out, "3\n")
	}
}

func TestRunErrorField(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "compile error: line 3"})
	})
	defer srv.Close()

	_, err := client.Run(context.Background(), "x", "python", "")
	if err == nil {
		t.Fatal("expected error for populated error field")
	}
	if err.Error() != "compile error: line 3" {
		t.Errorf("error text = %q, want raw service error", err.Error())
	}
}

func TestRunNon2xx(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := client.Run(context.Background(), "x", "python", "")
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestRunUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // closed immediately: connection refused

	client := NewClient(srv.URL, time.Second, zerolog.Nop())
	if _, err := client.Run(context.Background(), "x", "python", ""); err == nil {
		t.Fatal("expected error for unreachable service")
	}
}
