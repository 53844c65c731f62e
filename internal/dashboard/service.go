// Package dashboard is the delivery contract: it reads both feeds through
// their caches and hands formatted views to the HTTP layer.
package dashboard

import (
	"context"

	"homepanel/internal/cache"
	appLog "homepanel/internal/log"
	"homepanel/internal/model"
	"homepanel/internal/present"
)

// Feed is the read side of a cache.Cache.
type Feed[T cache.Payload] interface {
	Get(ctx context.Context) (cache.Record[T], error)
	Peek() (cache.Record[T], bool)
}

// Service serves the weather and events panels.
type Service struct {
	weather Feed[model.WeatherSnapshot]
	events  Feed[model.DaySnapshot]
	format  *present.Formatter
	logger  appLog.Logger
}

// NewService creates a Service.
func NewService(weather Feed[model.WeatherSnapshot], events Feed[model.DaySnapshot], format *present.Formatter, logger appLog.Logger) *Service {
	return &Service{
		weather: weather,
		events:  events,
		format:  format,
		logger:  logger,
	}
}

// Weather returns the weather view. When the refresh fails and an expired
// record is still on disk, that record is returned as a degraded view.
func (s *Service) Weather(ctx context.Context) present.Result[present.WeatherView] {
	return load(ctx, s, "weather", s.weather, s.format.Weather)
}

// Events returns the today/tomorrow view, degrading like Weather.
func (s *Service) Events(ctx context.Context) present.Result[present.EventsView] {
	return load(ctx, s, "events", s.events, s.format.Events)
}

func load[T cache.Payload, V any](ctx context.Context, s *Service, name string, feed Feed[T], render func(T) V) present.Result[V] {
	rec, err := feed.Get(ctx)
	if err == nil {
		return present.OK(render(rec.Payload))
	}

	if stale, ok := feed.Peek(); ok {
		s.logger.Warn("serving stale snapshot", "feed", name, "timestamp", stale.Timestamp, "err", err)
		return present.Degraded(render(stale.Payload), err)
	}

	s.logger.Error("snapshot unavailable", err, "feed", name)
	return present.Fail[V](err)
}
