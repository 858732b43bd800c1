package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rapilink/backend/internal/geocode"
	"github.com/rapilink/backend/internal/identity"
	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/utils"
)

const (
	NeighborhoodSourceManual   = "manual"
	NeighborhoodSourceUpstream = "wisphub"
	NeighborhoodSourceGeocoder = "geocoder"
)

type NeighborhoodInput struct {
	Name string   `json:"name" validate:"required"`
	City string   `json:"city"`
	Lat  *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon  *float64 `json:"lon" validate:"omitempty,longitude"`
}

// Neighborhoods lists local neighborhoods merged with the barrios recorded on upstream
// clients. Upstream coordinates are averaged per name and only fill gaps. An unreachable
// upstream degrades to the local list.
func (s *WorkflowService) Neighborhoods(ctx context.Context) ([]models.Neighborhood, error) {
	local, err := s.Store.ListNeighborhoods(ctx)
	if err != nil {
		return nil, err
	}
	if s.Upstream == nil {
		return local, nil
	}
	remote, err := s.Upstream.ClientNeighborhoods(ctx)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("upstream neighborhoods unavailable")
		return local, nil
	}

	type agg struct {
		name     string
		lat, lon float64
		n        int
	}
	byName := map[string]*agg{}
	var order []string
	for _, r := range remote {
		key := identity.Normalize(r.Name)
		if key == "" {
			continue
		}
		a, ok := byName[key]
		if !ok {
			a = &agg{name: strings.TrimSpace(r.Name)}
			byName[key] = a
			order = append(order, key)
		}
		if r.Latitude != 0 || r.Longitude != 0 {
			a.lat += r.Latitude
			a.lon += r.Longitude
			a.n++
		}
	}

	out := make([]models.Neighborhood, 0, len(local)+len(order))
	known := map[string]bool{}
	for _, n := range local {
		key := identity.Normalize(n.Name)
		known[key] = true
		if a, ok := byName[key]; ok && a.n > 0 && (n.Lat == nil || n.Lon == nil) {
			lat, lon := a.lat/float64(a.n), a.lon/float64(a.n)
			n.Lat, n.Lon = &lat, &lon
		}
		out = append(out, n)
	}
	for _, key := range order {
		if known[key] {
			continue
		}
		a := byName[key]
		n := models.Neighborhood{Name: a.name, Source: NeighborhoodSourceUpstream}
		if a.n > 0 {
			lat, lon := a.lat/float64(a.n), a.lon/float64(a.n)
			n.Lat, n.Lon = &lat, &lon
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return identity.Normalize(out[i].Name) < identity.Normalize(out[j].Name)
	})
	return out, nil
}

func (s *WorkflowService) CreateNeighborhood(ctx context.Context, in NeighborhoodInput) (models.Neighborhood, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.Neighborhood{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return s.Store.InsertNeighborhood(ctx, models.Neighborhood{
		ID:        newID(),
		Name:      strings.TrimSpace(in.Name),
		City:      strings.TrimSpace(in.City),
		Lat:       in.Lat,
		Lon:       in.Lon,
		Source:    NeighborhoodSourceManual,
		UpdatedAt: s.now(),
	})
}

func (s *WorkflowService) UpdateNeighborhood(ctx context.Context, id string, in NeighborhoodInput) (models.Neighborhood, error) {
	n, err := s.Store.GetNeighborhood(ctx, id)
	if err != nil {
		return models.Neighborhood{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		n.Name = name
	}
	if city := strings.TrimSpace(in.City); city != "" {
		n.City = city
	}
	if in.Lat != nil && in.Lon != nil {
		n.Lat, n.Lon = in.Lat, in.Lon
		n.Source = NeighborhoodSourceManual
	}
	n.UpdatedAt = s.now()
	if err := s.Store.UpdateNeighborhood(ctx, n); err != nil {
		return models.Neighborhood{}, err
	}
	return n, nil
}

func (s *WorkflowService) DeleteNeighborhood(ctx context.Context, id string) error {
	return s.Store.DeleteNeighborhood(ctx, id)
}

type GeocodeReport struct {
	Total    int `json:"total"`
	Geocoded int `json:"geocoded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// GeocodeNeighborhoods fills missing coordinates of local neighborhoods, or refreshes all of
// them when force is set.
func (s *WorkflowService) GeocodeNeighborhoods(ctx context.Context, force bool) (GeocodeReport, error) {
	var report GeocodeReport
	if s.Geocoder == nil {
		return report, ErrGeocoderDisabled
	}
	items, err := s.Store.ListNeighborhoods(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(items)
	for _, n := range items {
		if !geocode.ShouldGeocode(n, force) {
			report.Skipped++
			continue
		}
		query := geocode.BuildGeocodeQuery(s.Options.CountryDefault, n.City, n.Name)
		lat, lon, _, _, err := s.Geocoder.Geocode(ctx, query)
		if err != nil {
			report.Failed++
			s.Logger.Warn().Err(err).Str("neighborhood", n.Name).Str("query", query).Msg("geocode failed")
			continue
		}
		n.Lat, n.Lon = &lat, &lon
		n.Source = NeighborhoodSourceGeocoder
		n.UpdatedAt = s.now()
		if err := s.Store.UpdateNeighborhood(ctx, n); err != nil {
			report.Failed++
			s.Logger.Warn().Err(err).Str("neighborhood", n.Name).Msg("geocode write failed")
			continue
		}
		report.Geocoded++
	}
	return report, nil
}

// NearestNeighborhood returns the neighborhood closest to the point and its distance in km.
func (s *WorkflowService) NearestNeighborhood(ctx context.Context, lat, lon float64) (models.Neighborhood, float64, error) {
	all, err := s.Neighborhoods(ctx)
	if err != nil {
		return models.Neighborhood{}, 0, err
	}
	best := -1
	bestKm := math.MaxFloat64
	for i, n := range all {
		if n.Lat == nil || n.Lon == nil {
			continue
		}
		if d := utils.HaversineKm(lat, lon, *n.Lat, *n.Lon); d < bestKm {
			best, bestKm = i, d
		}
	}
	if best < 0 {
		return models.Neighborhood{}, 0, ErrNotFound
	}
	return all[best], bestKm, nil
}
