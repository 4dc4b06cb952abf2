// Package geo resolves the device position for emergency alerts.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/samarth-ai/samarth/internal/backends/restutil"
	"github.com/samarth-ai/samarth/pkg/urlvalidation"
)

// ErrUnavailable is returned when the position cannot be determined.
var ErrUnavailable = errors.New("geolocation unavailable")

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the position with four decimals as "lat, lng".
func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

// Locator performs a one-shot position query.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// StaticLocator always reports a fixed position, for devices without a GPS
// or network lookup.
type StaticLocator struct {
	Position Coordinates
}

func (s StaticLocator) Locate(context.Context) (Coordinates, error) {
	return s.Position, nil
}

// ParseStatic parses "lat,lng" into a StaticLocator.
func ParseStatic(s string) (StaticLocator, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return StaticLocator{}, fmt.Errorf("parse position %q: want \"lat,lng\"", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return StaticLocator{}, fmt.Errorf("parse latitude: %w", err)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return StaticLocator{}, fmt.Errorf("parse longitude: %w", err)
	}
	if la < -90 || la > 90 || ln < -180 || ln > 180 {
		return StaticLocator{}, fmt.Errorf("position %q out of range", s)
	}
	return StaticLocator{Position: Coordinates{Latitude: la, Longitude: ln}}, nil
}

// DefaultIPEndpoint is an ip-api.com compatible lookup URL.
const DefaultIPEndpoint = "http://ip-api.com/json/?fields=status,message,lat,lon"

// IPLocator estimates the position from the public IP address.
type IPLocator struct {
	Endpoint string
}

type ipResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (l IPLocator) Locate(ctx context.Context) (Coordinates, error) {
	endpoint := l.Endpoint
	if endpoint == "" {
		endpoint = DefaultIPEndpoint
	}

	var resp ipResponse
	if err := restutil.DoJSON(ctx, http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return Coordinates{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.Status != "" && resp.Status != "success" {
		return Coordinates{}, fmt.Errorf("%w: %s", ErrUnavailable, resp.Message)
	}
	return Coordinates{Latitude: resp.Lat, Longitude: resp.Lon}, nil
}

// New builds a locator by provider name. "none" and "" return nil, which
// callers treat as "not supported".
func New(provider, static, endpoint string) (Locator, error) {
	switch provider {
	case "", "none":
		return nil, nil
	case "static":
		return ParseStatic(static)
	case "ip":
		if endpoint != "" {
			// Local geolocation daemons are allowed; only the scheme is checked.
			if err := urlvalidation.Validate(context.Background(), endpoint, urlvalidation.AllowPrivateIPs()); err != nil {
				return nil, fmt.Errorf("geolocation endpoint: %w", err)
			}
		}
		return IPLocator{Endpoint: endpoint}, nil
	default:
		return nil, fmt.Errorf("unknown geolocation provider %q", provider)
	}
}
