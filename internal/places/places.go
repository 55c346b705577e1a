// Package places discovers candidate POIs around an office using the Google
// Places nearby search.
package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"googlemaps.github.io/maps"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

const (
	DefaultRadius = 200
	unnamed       = "Sin nombre"
	// Google rejects a next_page_token used right after it is issued.
	defaultPageDelay = 2 * time.Second
)

var ErrNoAPIKey = errors.New("maps API key not configured")

// Searcher is the part of *maps.Client the finder uses.
type Searcher interface {
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

type Finder struct {
	searcher  Searcher
	radius    uint
	maxPages  int
	pageDelay time.Duration
}

// NewFinder builds a finder backed by the Places API. An empty key yields
// ErrNoAPIKey so callers can disable discovery.
func NewFinder(apiKey string, radius uint, maxPages int) (*Finder, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return newFinder(client, radius, maxPages), nil
}

func newFinder(s Searcher, radius uint, maxPages int) *Finder {
	if radius == 0 {
		radius = DefaultRadius
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &Finder{
		searcher:  s,
		radius:    radius,
		maxPages:  maxPages,
		pageDelay: defaultPageDelay,
	}
}

// Nearby returns the places around the given point as unclassified POIs.
// Every discovered POI is typed PN; a place seen on several pages is kept
// once.
func (f *Finder) Nearby(ctx context.Context, lat, lng float64) ([]models.POI, error) {
	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: lat, Lng: lng},
		Radius:   f.radius,
	}

	pois := []models.POI{}
	seen := make(map[string]bool)

	for page := 0; page < f.maxPages; page++ {
		if page > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pageDelay):
			}
		}

		resp, err := f.searcher.NearbySearch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("nearby search failed: %w", err)
		}

		for _, r := range resp.Results {
			if r.PlaceID == "" || seen[r.PlaceID] {
				continue
			}
			seen[r.PlaceID] = true
			pois = append(pois, toPOI(r))
		}

		if resp.NextPageToken == "" {
			break
		}
		req = &maps.NearbySearchRequest{PageToken: resp.NextPageToken}
	}

	slog.Info("nearby places found", "count", len(pois), "lat", lat, "lng", lng, "radius", f.radius)
	return pois, nil
}

func toPOI(r maps.PlacesSearchResult) models.POI {
	name := r.Name
	if name == "" {
		name = unnamed
	}
	return models.POI{
		ID:        r.PlaceID,
		Type:      models.POITypeNeutral,
		Name:      name,
		Latitude:  r.Geometry.Location.Lat,
		Longitude: r.Geometry.Location.Lng,
	}
}
