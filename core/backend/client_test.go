package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionReturnsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("voice"); got != "echo" {
			t.Errorf("expected voice query parameter echo, got %q", got)
		}
		w.Write([]byte(`{"client_secret":{"value":"ek_test"}}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	credential, err := client.Session(context.Background(), "echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credential != "ek_test" {
		t.Fatalf("expected credential ek_test, got %q", credential)
	}
}

func TestSessionMissingCredentialIsHardFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sess_123"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	if _, err := client.Session(context.Background(), "echo"); err == nil {
		t.Fatalf("expected error for response without credential")
	}
}

func TestPlaceOrderConvertsPriceToCents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"order":"burger","quantity":2}` {
			t.Errorf("unexpected request body %s", body)
		}
		w.Write([]byte(`{"name":"burger","quantity":2,"price":5.99}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	confirmation, err := client.PlaceOrder(context.Background(), "burger", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmation.Name != "burger" || confirmation.Quantity != 2 || confirmation.PriceCents != 599 {
		t.Fatalf("unexpected confirmation %+v", confirmation)
	}
}

func TestPlaceOrderRejectionIsMenuError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Item 'sundae' not found in menu"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.PlaceOrder(context.Background(), "sundae", 1)

	menuErr := &MenuError{}
	if !errors.As(err, &menuErr) {
		t.Fatalf("expected *MenuError, got %T: %v", err, err)
	}
	if menuErr.Reason != "Item 'sundae' not found in menu" {
		t.Fatalf("expected backend reason to survive, got %q", menuErr.Reason)
	}
}

func TestMenuDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/menu/fries" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"name":"fries","price":2.99}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	details, err := client.MenuDetails(context.Background(), "fries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details["name"] != "fries" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestNegotiate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ek_test" {
			t.Errorf("expected bearer credential, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/sdp" {
			t.Errorf("expected sdp content type, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "v=0 offer" {
			t.Errorf("expected raw offer body, got %q", body)
		}
		w.Write([]byte("v=0 answer"))
	}))
	defer server.Close()

	client := NewClient(WithRealtimeURL(server.URL))
	answer, err := client.Negotiate(context.Background(), "v=0 offer", "ek_test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "v=0 answer" {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestNegotiateEmptyAnswerIsHardFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClient(WithRealtimeURL(server.URL))
	if _, err := client.Negotiate(context.Background(), "v=0 offer", "ek_test"); err == nil {
		t.Fatalf("expected error for empty answer body")
	}
}
