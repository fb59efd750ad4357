package grounding

import (
	"context"
	"time"

	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

const (
	SearchRadiusMeters = 1500.0
	MaxPlaces          = 10
)

// PlaceTypes is the category allowlist for nearby searches.
var PlaceTypes = []string{"restaurant", "tourist_attraction", "cafe"}

// Enricher turns an optional location into the grounding context for a turn.
type Enricher struct {
	finder  domain.PlacesFinder
	timeout time.Duration
}

func NewEnricher(finder domain.PlacesFinder, timeout time.Duration) *Enricher {
	return &Enricher{finder: finder, timeout: timeout}
}

// Enrich never fails: lookup problems degrade to a known location with no places.
func (e *Enricher) Enrich(ctx context.Context, loc *domain.Location) domain.GroundingContext {
	log := observability.LoggerFromContext(ctx)

	if loc == nil {
		log.Info("no location supplied, skipping places lookup")
		return domain.GroundingContext{}
	}
	out := domain.GroundingContext{LocationKnown: true}

	if e.finder == nil {
		log.Warn("places finder not configured")
		return out
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	places, err := e.finder.SearchNearby(ctx, domain.PlacesQuery{
		Location:     *loc,
		RadiusMeters: SearchRadiusMeters,
		Types:        PlaceTypes,
		MaxResults:   MaxPlaces,
	})
	if err != nil {
		log.Warn("places lookup failed, continuing without places",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return out
	}
	if len(places) > MaxPlaces {
		places = places[:MaxPlaces]
	}

	log.Info("places lookup done", "places", len(places), "elapsed_ms", time.Since(start).Milliseconds())
	out.Places = places
	return out
}
