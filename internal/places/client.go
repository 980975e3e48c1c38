// Package places looks up supermarkets near a coordinate.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/mastermarket/mastermarket/internal/shared"
)

const (
	// DefaultBaseURL is the Google Places API (New) endpoint.
	DefaultBaseURL = "https://places.googleapis.com/v1"

	defaultRadius = 5000
	maxRadius     = 50000
	earthRadiusM  = 6371000.0
	fieldMask     = "places.id,places.displayName,places.formattedAddress,places.location,places.rating,places.userRatingCount,places.currentOpeningHours,places.types"
)

// Source names where a result came from.
type Source string

const (
	SourceGoogle Source = "google"
	SourceMock   Source = "mock"
)

// Store is a nearby shop.
type Store struct {
	PlaceID        string   `json:"place_id"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	DistanceMeters *int     `json:"distance_meters"`
	Types          []string `json:"types,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	RatingCount    *int     `json:"user_ratings_total,omitempty"`
	OpenNow        *bool    `json:"opening_hours,omitempty"`
}

// Query describes a nearby search.
type Query struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters int
}

// Result is a list of stores and its origin.
type Result struct {
	Source Source  `json:"source"`
	Stores []Store `json:"stores"`
}

// Config controls the client.
type Config struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
}

// Client wraps the Places nearby search.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient constructs a new client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	burst := max(int(cfg.RatePerSecond), 1)
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		logger:     logger,
	}
}

// Nearby lists stores around the query point, closest first. Without an API
// key, or when the upstream call fails, a fixed sample list is returned.
func (c *Client) Nearby(ctx context.Context, q Query) (Result, error) {
	if q.Latitude < -90 || q.Latitude > 90 || q.Longitude < -180 || q.Longitude > 180 {
		return Result{}, fmt.Errorf("places: coordinates out of range: %w", shared.ErrInvalidArgument)
	}
	if q.RadiusMeters <= 0 {
		q.RadiusMeters = defaultRadius
	}
	q.RadiusMeters = min(q.RadiusMeters, maxRadius)
	if c.apiKey == "" {
		return Result{Source: SourceMock, Stores: MockStores()}, nil
	}
	stores, err := c.search(ctx, q)
	if err != nil {
		c.logger.Warn("places nearby search failed", slog.Any("error", err))
		return Result{Source: SourceMock, Stores: MockStores()}, nil
	}
	return Result{Source: SourceGoogle, Stores: stores}, nil
}

type searchRequest struct {
	IncludedTypes       []string            `json:"includedTypes"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng `json:"center"`
	Radius int    `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress    string   `json:"formattedAddress"`
		Location            *latLng  `json:"location"`
		Rating              *float64 `json:"rating"`
		UserRatingCount     *int     `json:"userRatingCount"`
		Types               []string `json:"types"`
		CurrentOpeningHours *struct {
			OpenNow *bool `json:"openNow"`
		} `json:"currentOpeningHours"`
	} `json:"places"`
}

func (c *Client) search(ctx context.Context, q Query) ([]Store, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	payload, err := json.Marshal(searchRequest{
		IncludedTypes:  []string{"supermarket", "grocery_store", "convenience_store"},
		MaxResultCount: 20,
		LocationRestriction: locationRestriction{Circle: circle{
			Center: latLng{Latitude: q.Latitude, Longitude: q.Longitude},
			Radius: q.RadiusMeters,
		}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchNearby", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %v: %w", err, shared.ErrUpstreamUnavailable)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("places returned status %d: %w", resp.StatusCode, shared.ErrUpstreamUnavailable)
	}
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode places response: %w", err)
	}

	stores := make([]Store, 0, len(body.Places))
	for _, p := range body.Places {
		store := Store{
			PlaceID:     p.ID,
			Name:        p.DisplayName.Text,
			Address:     p.FormattedAddress,
			Types:       p.Types,
			Rating:      p.Rating,
			RatingCount: p.UserRatingCount,
		}
		if store.Name == "" {
			store.Name = "Unknown Store"
		}
		if store.Address == "" {
			store.Address = "Address not available"
		}
		if p.CurrentOpeningHours != nil {
			store.OpenNow = p.CurrentOpeningHours.OpenNow
		}
		if p.Location != nil {
			d := int(math.Round(Haversine(q.Latitude, q.Longitude, p.Location.Latitude, p.Location.Longitude)))
			store.DistanceMeters = &d
		}
		stores = append(stores, store)
	}
	SortByDistance(stores)
	return stores, nil
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SortByDistance orders stores closest first; stores without a distance go last.
func SortByDistance(stores []Store) {
	sort.SliceStable(stores, func(i, j int) bool {
		di, dj := stores[i].DistanceMeters, stores[j].DistanceMeters
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
}

// MockStores is the fixed list served when no live lookup is possible.
func MockStores() []Store {
	mk := func(id, name, address string, d int) Store {
		return Store{PlaceID: id, Name: name, Address: address, DistanceMeters: &d}
	}
	return []Store{
		mk("mock_1", "Tesco Express", "123 High Street, London", 250),
		mk("mock_2", "Sainsbury's Local", "45 Main Road, London", 480),
		mk("mock_3", "ASDA", "78 Park Lane, London", 720),
	}
}
