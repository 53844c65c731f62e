package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homepanel/internal/cache"
	"homepanel/internal/config"
	"homepanel/internal/dashboard"
	"homepanel/internal/events"
	"homepanel/internal/ics"
	appLog "homepanel/internal/log"
	"homepanel/internal/model"
	"homepanel/internal/observability"
	"homepanel/internal/present"
	"homepanel/internal/weather"
	"homepanel/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", flags.configPath, err)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	logger := appLog.New(appLog.Options{
		Level:  appLog.ParseLevel(conf.LogLevel),
		Format: conf.LogFormat,
	})
	logger.Info("homepanel starting", "version", version)

	if err := conf.Validate(); err != nil {
		logger.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	logger.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"calendar_count", len(conf.Events.Calendars),
		"meals", conf.Events.Meals != nil,
		"weather_ttl", conf.Weather.TTL(),
		"events_ttl", conf.Events.TTL(),
		"weather_key_set", conf.Weather.APIKey != "",
		"once", flags.once,
	)

	svc, err := buildService(conf, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("failed to initialize", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := runOnce(ctx, svc); err != nil {
			logger.Error("refresh failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf.Listen, svc, logger); err != nil {
		logger.Error("http server failed", err)
		os.Exit(1)
	}
	logger.Info("homepanel exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh both feeds once, print them as JSON and exit")

	flag.Parse()

	return cfg
}

// buildService wires clients, caches and the formatter from conf.
func buildService(conf *config.Config, logger appLog.Logger, metrics *observability.Metrics) (*dashboard.Service, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}
	opts := cache.Options{Logger: logger, Metrics: metrics}

	wc := weather.NewClient(weather.Config{
		BaseURL:       conf.Weather.BaseURL,
		APIKey:        conf.Weather.APIKey,
		Lat:           conf.Weather.Lat,
		Lon:           conf.Weather.Lon,
		Units:         conf.Weather.Units,
		ForecastCount: conf.Weather.ForecastCount(),
	}, 10*time.Second, logger, metrics)

	weatherCache, err := cache.New[model.WeatherSnapshot](cache.Feed{
		ID:   "weather",
		Path: conf.Weather.CacheFile,
		TTL:  conf.Weather.TTL(),
	}, wc.Snapshot, opts)
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(conf.Events.Calendars)+1)
	calendars := make([]events.Calendar, 0, len(conf.Events.Calendars))
	for _, c := range conf.Events.Calendars {
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL})
		calendars = append(calendars, events.Calendar{ID: c.ID, Name: c.DisplayName()})
	}
	mealsID := ""
	if m := conf.Events.Meals; m != nil {
		sources = append(sources, ics.Source{ID: m.ID, URL: m.URL})
		mealsID = m.ID
	}

	fetcher := ics.NewFetcher(conf.Events.ICSCacheDir, 15*time.Second, logger, metrics)
	calClient := ics.NewClient(sources, fetcher, loc, logger)
	agg := events.NewAggregator(loc, events.Directions{
		Origin:     conf.Events.Directions.Origin,
		BaseURL:    conf.Events.Directions.BaseURL,
		APIVersion: conf.Events.Directions.APIVersion,
	}, logger, metrics)
	src := events.NewSource(calClient, calendars, mealsID, agg, logger)

	eventsCache, err := cache.New[model.DaySnapshot](cache.Feed{
		ID:   "events",
		Path: conf.Events.CacheFile,
		TTL:  conf.Events.TTL(),
	}, src.Fetch, opts)
	if err != nil {
		return nil, err
	}

	labels := make([]present.Label, 0, len(conf.Locations))
	for _, l := range conf.Locations {
		labels = append(labels, present.Label{Match: l.Match, Label: l.Label})
	}

	return dashboard.NewService(weatherCache, eventsCache, present.NewFormatter(loc, labels), logger), nil
}

// runOnce reads both feeds and prints them. A feed that could not be
// served fails the run.
func runOnce(ctx context.Context, svc *dashboard.Service) error {
	w := svc.Weather(ctx)
	e := svc.Events(ctx)

	out := struct {
		Weather any `json:"weather,omitempty"`
		Events  any `json:"events,omitempty"`
	}{}
	if w.HasView() {
		out.Weather = w.View
	}
	if e.HasView() {
		out.Events = e.View
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return errors.Join(w.Err, e.Err)
}

// serve runs the HTTP server until ctx is canceled, then shuts it down.
func serve(ctx context.Context, listen string, svc *dashboard.Service, logger appLog.Logger) error {
	srv, err := web.NewServer(listen, svc, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
