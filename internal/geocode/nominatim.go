package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// NominatimGeocoder resolves neighborhood queries against an OSM Nominatim instance. The
// public instance allows one request per second, so calls share a limiter and answers,
// misses included, are cached per query for the life of the process.
type NominatimGeocoder struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	MinInterval  time.Duration
	Client       *http.Client

	once    sync.Once
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]place
}

type place struct {
	lat, lon   float64
	label      string
	importance float64
	missing    bool
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) init() {
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	g.BaseURL = strings.TrimSuffix(g.BaseURL, "/")
	if g.UserAgent == "" {
		g.UserAgent = "rapilink-backend"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}
	g.limiter = rate.NewLimiter(rate.Every(g.MinInterval), 1)
	g.cache = map[string]place{}
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (float64, float64, string, float64, error) {
	g.once.Do(g.init)
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, 0, "", 0, ErrNotFound
	}

	g.mu.Lock()
	cached, ok := g.cache[query]
	g.mu.Unlock()
	if ok {
		return cached.result()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return 0, 0, "", 0, err
	}
	p, err := g.search(ctx, query)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, 0, "", 0, err
	}

	g.mu.Lock()
	g.cache[query] = p
	g.mu.Unlock()
	return p.result()
}

func (g *NominatimGeocoder) search(ctx context.Context, query string) (place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if g.CountryCodes != "" {
		params.Set("countrycodes", g.CountryCodes)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return place{}, err
	}
	req.Header.Set("User-Agent", g.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return place{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return place{}, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return place{}, fmt.Errorf("nominatim decode: %w", err)
	}
	return firstPlace(items)
}

// firstPlace takes the best-ranked item. An empty list or a null-island answer is a miss.
func firstPlace(items []nominatimItem) (place, error) {
	if len(items) == 0 {
		return place{missing: true}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return place{}, fmt.Errorf("nominatim lat %q: %w", items[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return place{}, fmt.Errorf("nominatim lon %q: %w", items[0].Lon, err)
	}
	if lat == 0 && lon == 0 {
		return place{missing: true}, ErrNotFound
	}
	return place{lat: lat, lon: lon, label: items[0].DisplayName, importance: items[0].Importance}, nil
}

func (p place) result() (float64, float64, string, float64, error) {
	if p.missing {
		return 0, 0, "", 0, ErrNotFound
	}
	return p.lat, p.lon, p.label, p.importance, nil
}
