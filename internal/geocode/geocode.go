package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/rapilink/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

func BuildGeocodeQuery(country string, city string, neighborhood string) string {
	parts := []string{}
	for _, p := range []string{neighborhood, city, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func ShouldGeocode(n models.Neighborhood, force bool) bool {
	if force {
		return true
	}
	return n.Lat == nil || n.Lon == nil
}
