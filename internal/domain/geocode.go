package domain

import (
	"context"
	"log/slog"
)

// EnrichDetail attaches a reverse-geocoded place name to a site detail.
// If geocoder is nil or the lookup fails, the detail is returned unchanged
// (graceful degradation).
func EnrichDetail(ctx context.Context, detail Detail, at LatLng, geocoder Geocoder, logger *slog.Logger) Detail {
	if geocoder == nil {
		return detail
	}

	result, err := geocoder.ReverseGeocode(ctx, at.Lat, at.Lng)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"site", detail.Key,
			"lat", at.Lat,
			"lon", at.Lng,
			"error", err,
		)
		return detail
	}
	if result.FormattedAddress == "" {
		return detail
	}

	detail.Place = result.PlaceName
	detail.FormattedAddress = result.FormattedAddress
	return detail
}
