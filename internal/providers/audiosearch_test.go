package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFreesoundSearchTracks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "door creak" {
			t.Errorf("query = %q, want %q", got, "door creak")
		}
		if got := r.URL.Query().Get("token"); got != "test-key" {
			t.Errorf("token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"name": "old door creak", "duration": 3.2, "previews": {"preview-hq-mp3": "https://cdn.example/hq.mp3", "preview-lq-mp3": "https://cdn.example/lq.mp3"}},
			{"name": "lq only", "duration": 1.5, "previews": {"preview-lq-mp3": "https://cdn.example/lq2.mp3"}},
			{"name": "no previews", "duration": 2.0, "previews": {}}
		]}`))
	}))
	defer srv.Close()

	c := NewFreesoundClient(FreesoundConfig{APIKey: "test-key", BaseURL: srv.URL})
	tracks, err := c.SearchTracks(context.Background(), []string{"door", "creak"})
	if err != nil {
		t.Fatalf("SearchTracks failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2 (no-preview result dropped)", len(tracks))
	}
	if tracks[0].URL != "https://cdn.example/hq.mp3" {
		t.Errorf("first track URL = %q, want HQ preview", tracks[0].URL)
	}
	if tracks[1].URL != "https://cdn.example/lq2.mp3" {
		t.Errorf("second track URL = %q, want LQ fallback", tracks[1].URL)
	}
	if tracks[0].DurationSec != 3.2 {
		t.Errorf("duration = %v, want 3.2", tracks[0].DurationSec)
	}
}

func TestFreesoundSearchTracks_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewFreesoundClient(FreesoundConfig{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := c.SearchTracks(context.Background(), []string{"thunder"}); err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestJamendoSearchTracks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("client_id"); got != "client-1" {
			t.Errorf("client_id = %q", got)
		}
		if got := r.URL.Query().Get("search"); got != "dark ambient" {
			t.Errorf("search = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"name": "Nocturne", "audio": "https://cdn.example/nocturne.mp3", "duration": 184},
			{"name": "missing audio", "audio": "", "duration": 90}
		]}`))
	}))
	defer srv.Close()

	c := NewJamendoClient(JamendoConfig{ClientID: "client-1", BaseURL: srv.URL})
	tracks, err := c.SearchTracks(context.Background(), []string{"dark", "ambient"})
	if err != nil {
		t.Fatalf("SearchTracks failed: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1 (audio-less result dropped)", len(tracks))
	}
	if tracks[0].Name != "Nocturne" || tracks[0].DurationSec != 184 {
		t.Errorf("track = %+v", tracks[0])
	}
}

func TestPexelsGenerateImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "pexels-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"photos": [{"alt": "a lighthouse", "src": {"large2x": "https://images.example/l2x.jpg", "large": "https://images.example/l.jpg"}}]}`))
	}))
	defer srv.Close()

	c := NewPexelsClient(PexelsConfig{APIKey: "pexels-key", BaseURL: srv.URL})
	images, err := c.GenerateImages(context.Background(), []string{"lighthouse in a storm"}, 1)
	if err != nil {
		t.Fatalf("GenerateImages failed: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	if images[0].URL != "https://images.example/l2x.jpg" {
		t.Errorf("URL = %q, want large2x preferred", images[0].URL)
	}
	if len(images[0].Data) != 0 {
		t.Error("stock images should carry URL only, no blob")
	}
}
