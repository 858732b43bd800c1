package geocode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFirstPlace(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "4.1420",
			Lon:         "-73.6266",
			DisplayName: "Centro, Villavicencio, Meta, Colombia",
			Importance:  0.61,
		},
	}
	p, err := firstPlace(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.lat != 4.1420 || p.lon != -73.6266 {
		t.Fatalf("unexpected coordinates: %+v", p)
	}
	if p.importance != 0.61 {
		t.Fatalf("unexpected importance: %f", p.importance)
	}
}

func TestFirstPlaceMisses(t *testing.T) {
	if _, err := firstPlace(nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := firstPlace([]nominatimItem{{Lat: "0", Lon: "0"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for null island, got %v", err)
	}
	if _, err := firstPlace([]nominatimItem{{Lat: "x", Lon: "1"}}); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestGeocodeCachesByQuery(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("countrycodes") != "co" {
			t.Errorf("expected countrycodes=co, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("q") == "Nowhere" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"lat": "4.14", "lon": "-73.62", "display_name": "Centro", "importance": 0.5}]`)
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL + "/", UserAgent: "test-agent", CountryCodes: "co", MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		lat, _, name, _, err := g.Geocode(context.Background(), "Centro, Colombia")
		if err != nil {
			t.Fatalf("geocode: %v", err)
		}
		if lat != 4.14 || name != "Centro" {
			t.Fatalf("unexpected result %f %s", lat, name)
		}
	}
	for i := 0; i < 2; i++ {
		if _, _, _, _, err := g.Geocode(context.Background(), "Nowhere"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected two upstream calls, got %d", n)
	}
}

func TestGeocodeUpstreamErrorNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		if _, _, _, _, err := g.Geocode(context.Background(), "Centro"); err == nil || errors.Is(err, ErrNotFound) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected two upstream calls, got %d", n)
	}
}
