package resilient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func validMediaBody() []byte {
	return bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 200)
}

func TestFetcher_DirectSuccess(t *testing.T) {
	body := validMediaBody()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Relays: []string{}})
	got, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("fetched body does not match")
	}
}

func TestFetcher_RejectsHTMLMasqueradingAsMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>" + strings.Repeat("blocked ", 100) + "</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Relays: []string{}})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Fetch() should reject an HTML body")
	}
	if !strings.Contains(err.Error(), "HTML") {
		t.Errorf("error = %v, want HTML rejection", err)
	}
}

func TestFetcher_RejectsTooSmallBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Relays: []string{}})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Fetch() should reject a tiny body")
	}
}

func TestFetcher_FallsBackToRelay(t *testing.T) {
	body := validMediaBody()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer direct.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(body)
	}))
	defer relay.Close()

	f := NewFetcher(FetcherConfig{
		LocalRelay: relay.URL + "/?url=",
		Relays:     []string{},
	})

	got, err := f.Fetch(context.Background(), direct.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("relayed body does not match")
	}
}

func TestFetcher_AggregateErrorNamesLastCause(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "direct blocked", http.StatusForbidden)
	}))
	defer direct.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay exploded", http.StatusInternalServerError)
	}))
	defer relay.Close()

	f := NewFetcher(FetcherConfig{
		LocalRelay: relay.URL + "/?url=",
		Relays:     []string{},
	})

	_, err := f.Fetch(context.Background(), direct.URL)
	if err == nil {
		t.Fatal("Fetch() expected aggregate error")
	}
	if !strings.Contains(err.Error(), "access paths failed") {
		t.Errorf("error = %v, want aggregate failure", err)
	}
	if !strings.Contains(err.Error(), "relay exploded") {
		t.Errorf("error = %v, want last underlying cause", err)
	}
}
