// Package proximity answers "active signals within radius R of a point".
//
// Postgres is the source of truth. When a Redis client is configured the
// engine keeps a GEO set of active signal IDs and uses GEOSEARCH to narrow
// candidates; results are always re-hydrated from Postgres and re-filtered,
// so a stale index entry can never surface a retired signal. Without Redis
// the engine falls back to a bounding-box SQL prefilter plus an exact
// haversine check in process.
package proximity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/geo"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/repo"
)

const geoKey = "signals:geo"

// Engine is the proximity query engine over active signals.
type Engine struct {
	signals   repo.SignalRepo
	users     repo.UserRepo
	responses repo.ResponseRepo
	rdb       *redis.Client // nil disables the index
	logger    *logrus.Logger
}

// NewEngine creates a proximity engine. rdb may be nil.
func NewEngine(signals repo.SignalRepo, users repo.UserRepo, responses repo.ResponseRepo, rdb *redis.Client, logger *logrus.Logger) *Engine {
	return &Engine{
		signals:   signals,
		users:     users,
		responses: responses,
		rdb:       rdb,
		logger:    logger,
	}
}

// Index adds a signal to the geo index. Index failures are logged, not
// returned: the SQL fallback keeps queries correct without the index entry.
func (e *Engine) Index(ctx context.Context, s model.Signal) {
	if e.rdb == nil {
		return
	}
	err := e.rdb.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      s.ID.String(),
		Longitude: s.Longitude,
		Latitude:  s.Latitude,
	}).Err()
	if err != nil {
		e.logger.WithError(err).WithField("signal_id", s.ID).Warn("geo index add failed")
	}
}

// Remove retires a signal from the geo index.
func (e *Engine) Remove(ctx context.Context, id uuid.UUID) {
	if e.rdb == nil {
		return
	}
	if err := e.rdb.ZRem(ctx, geoKey, id.String()).Err(); err != nil {
		e.logger.WithError(err).WithField("signal_id", id).Warn("geo index remove failed")
	}
}

// Nearby returns live signals within radiusKM of (lat, lon), nearest first,
// as responder-safe views. Signals owned by excludeUser are omitted;
// uuid.Nil excludes nothing.
func (e *Engine) Nearby(ctx context.Context, lat, lon, radiusKM float64, excludeUser uuid.UUID) ([]model.SignalView, error) {
	if !geo.ValidLatLon(lat, lon) {
		return nil, fmt.Errorf("coordinates out of range: %w", model.ErrInvalid)
	}
	if radiusKM <= 0 {
		return nil, fmt.Errorf("radius must be positive: %w", model.ErrInvalid)
	}

	candidates, err := e.candidates(ctx, lat, lon, radiusKM)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]model.SignalView, 0, len(candidates))
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, s := range candidates {
		if !s.Live(now) || s.UserID == excludeUser {
			continue
		}
		dist := geo.DistanceKM(lat, lon, s.Latitude, s.Longitude)
		if dist > radiusKM {
			continue
		}

		owner, err := e.users.GetByID(ctx, s.UserID)
		if err != nil {
			return nil, fmt.Errorf("load signal owner: %w", err)
		}

		views = append(views, model.SignalView{
			ID:           s.ID,
			UserID:       s.UserID,
			UserName:     owner.Name,
			UserGender:   owner.Gender,
			UserAgeRange: owner.AgeRange(now),
			Latitude:     s.Latitude,
			Longitude:    s.Longitude,
			DistanceKM:   dist,
			Intensity:    s.Intensity,
			CreatedAt:    s.CreatedAt,
		})
		ids = append(ids, s.ID)
	}

	counts, err := e.responses.CountBySignals(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("response counts: %w", err)
	}
	for i := range views {
		views[i].ResponseCount = counts[views[i].ID]
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].DistanceKM != views[j].DistanceKM {
			return views[i].DistanceKM < views[j].DistanceKM
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})

	return views, nil
}

// candidates narrows the active set via the geo index when available,
// otherwise via a bounding-box scan.
func (e *Engine) candidates(ctx context.Context, lat, lon, radiusKM float64) ([]model.Signal, error) {
	if e.rdb != nil {
		locs, err := e.rdb.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
			GeoSearchQuery: redis.GeoSearchQuery{
				Longitude:  lon,
				Latitude:   lat,
				Radius:     radiusKM,
				RadiusUnit: "km",
			},
		}).Result()
		if err == nil {
			ids := make([]uuid.UUID, 0, len(locs))
			for _, loc := range locs {
				id, parseErr := uuid.Parse(loc.Name)
				if parseErr != nil {
					continue
				}
				ids = append(ids, id)
			}
			return e.signals.GetLiveByIDs(ctx, ids)
		}
		e.logger.WithError(err).Warn("geo search failed, falling back to sql scan")
	}

	dLat, dLon := geo.BoundingBox(lat, radiusKM)
	return e.signals.ListLiveInBox(ctx, lat-dLat, lat+dLat, lon-dLon, lon+dLon)
}
