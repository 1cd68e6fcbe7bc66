package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GatewayPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("service") != "open-ils.actor" {
			t.Errorf("service = %s", q.Get("service"))
		}
		if q.Get("method") != "opensrf.system.echo" {
			t.Errorf("method = %s", q.Get("method"))
		}
		if q.Get("param") != `"ping"` {
			t.Errorf("param = %s", q.Get("param"))
		}
		_, _ = w.Write([]byte(`{"status":200,"payload":["ping"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	resp, err := c.Request(context.Background(), "open-ils.actor", "opensrf.system.echo", "ping")
	if err != nil {
		t.Fatal(err)
	}
	s, err := resp.String()
	if err != nil || s != "ping" {
		t.Errorf("String = %q, %v", s, err)
	}
}

func TestClientRequestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Request(context.Background(), "svc", "m")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
}

func TestClientRequestNoBaseURL(t *testing.T) {
	c := NewClient("", nil)
	if _, err := c.Request(context.Background(), "svc", "m"); err == nil {
		t.Fatal("expected error with no base URL")
	}
}

func TestClientRequestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // deliberately dead

	c := NewClient(srv.URL, nil)
	_, err := c.Request(context.Background(), "svc", "m")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
}
