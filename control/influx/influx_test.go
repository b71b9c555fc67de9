package influx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLine(t *testing.T) {
	ts := time.Unix(1, 500)
	got := Line("clock", []Field{{"light", 12}, {"temperature", 21.5}}, ts)
	if want := "clock light=12,temperature=21.5 1000000500\n"; got != want {
		t.Errorf("line:\n  got: %q\n want: %q", got, want)
	}
}

func TestWrite(t *testing.T) {
	var gotBody, gotAuth, gotQuery string
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		gotAuth = req.Header.Get("authorization")
		gotQuery = req.URL.RawQuery
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := New(srv.URL+"/", "home", "sensors", "secret")
	if err := s.Write(context.Background(), "clock light=1 1\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := gotBody, "clock light=1 1\n"; got != want {
		t.Errorf("body:\n  got: %q\n want: %q", got, want)
	}
	if got, want := gotAuth, "Token secret"; got != want {
		t.Errorf("authorization:\n  got: %v\n want: %v", got, want)
	}
	if got, want := gotQuery, "bucket=sensors&org=home"; got != want {
		t.Errorf("query:\n  got: %v\n want: %v", got, want)
	}

	status = http.StatusUnauthorized
	if err := s.Write(context.Background(), "clock light=1 1\n"); err == nil {
		t.Error("expected error for 401")
	}
}

func TestWriteWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()
	s := New(srv.URL, "home", "sensors", "")
	if err := s.Write(context.Background(), "clock light=1 1\n"); err != nil {
		t.Errorf("write: %v", err)
	}
}

func TestRun(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		got <- string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(srv.URL, "home", "sensors", "secret")
	errCh := make(chan error)
	go func() { errCh <- s.Run(ctx) }()
	s.Offer("clock light=3 3\n")
	select {
	case line := <-got:
		if want := "clock light=3 3\n"; line != want {
			t.Errorf("line:\n  got: %q\n want: %q", line, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for write")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("run:\n  got: %v\n want: %v", err, context.Canceled)
	}
}
