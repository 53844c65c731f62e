package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"homepanel/internal/fileutil"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets may also come from the environment (or a .env file
// next to the process), which always wins over the file.

// Environment overrides.
const (
	EnvWeatherAPIKey = "HOMEPANEL_WEATHER_API_KEY"
	EnvListen        = "HOMEPANEL_LISTEN"
	EnvLogLevel      = "HOMEPANEL_LOG_LEVEL"
)

// CalendarConfig describes a single ICS calendar subscription.
type CalendarConfig struct {
	// ID is an internal identifier used for lookups and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown next to each event.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
}

// DisplayName returns Name, falling back to ID.
func (c CalendarConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// LocationLabel rewrites any location containing Match into Label.
type LocationLabel struct {
	Match string `yaml:"match" json:"match"`
	Label string `yaml:"label" json:"label"`
}

// WeatherConfig configures the weather feed and its OpenWeather client.
type WeatherConfig struct {
	BaseURL  string  `yaml:"base_url" json:"base_url"`
	APIKey   string  `yaml:"api_key" json:"-"`
	Lat      float64 `yaml:"lat" json:"lat"`
	Lon      float64 `yaml:"lon" json:"lon"`
	Units    string  `yaml:"units" json:"units"`
	NumDays  int     `yaml:"num_days" json:"num_days"`
	Forecast int     `yaml:"forecast_count" json:"forecast_count"`

	CacheFile string `yaml:"cache_file" json:"cache_file"`
	// CacheTTL is in seconds.
	CacheTTL int `yaml:"cache_ttl" json:"cache_ttl"`
}

// ForecastCount is the number of 3-hour forecast slots to request.
func (w WeatherConfig) ForecastCount() int {
	if w.Forecast > 0 {
		return w.Forecast
	}
	return w.NumDays * 8
}

// TTL returns CacheTTL as a duration.
func (w WeatherConfig) TTL() time.Duration {
	return time.Duration(w.CacheTTL) * time.Second
}

// DirectionsConfig controls the synthesized maps link for event locations.
type DirectionsConfig struct {
	Origin     string `yaml:"origin" json:"origin"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIVersion string `yaml:"api_version" json:"api_version"`
}

// EventsConfig configures the events feed.
type EventsConfig struct {
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	// Meals is the dedicated food calendar. Optional.
	Meals *CalendarConfig `yaml:"meals,omitempty" json:"meals,omitempty"`

	Directions DirectionsConfig `yaml:"directions" json:"directions"`

	// ICSCacheDir holds conditional-GET metadata per subscription.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	CacheFile string `yaml:"cache_file" json:"cache_file"`
	// CacheTTL is in seconds.
	CacheTTL int `yaml:"cache_ttl" json:"cache_ttl"`
}

// TTL returns CacheTTL as a duration.
func (e EventsConfig) TTL() time.Duration {
	return time.Duration(e.CacheTTL) * time.Second
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "America/Chicago").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Locations maps known address fragments to short labels. Order matters:
	// the first matching entry wins.
	Locations []LocationLabel `yaml:"locations" json:"locations"`

	Weather WeatherConfig `yaml:"weather" json:"weather"`
	Events  EventsConfig  `yaml:"events" json:"events"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		LogLevel:  "info",
		LogFormat: "text",
		Timezone:  "America/Chicago",
		Locations: []LocationLabel{},
		Weather: WeatherConfig{
			BaseURL:   "https://api.openweathermap.org/data/2.5",
			Units:     "metric",
			NumDays:   1,
			CacheFile: "cache/weather.json",
			CacheTTL:  1800,
		},
		Events: EventsConfig{
			Calendars: []CalendarConfig{},
			Directions: DirectionsConfig{
				BaseURL:    "https://www.google.com/maps/dir/",
				APIVersion: "1",
			},
			ICSCacheDir: "cache/ics",
			CacheFile:   "cache/events.json",
			CacheTTL:    900,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Locations == nil {
		c.Locations = []LocationLabel{}
	}

	w := &c.Weather
	if w.BaseURL == "" {
		w.BaseURL = def.Weather.BaseURL
	}
	w.BaseURL = strings.TrimRight(w.BaseURL, "/")
	if w.Units == "" {
		w.Units = def.Weather.Units
	}
	if w.NumDays <= 0 {
		w.NumDays = def.Weather.NumDays
	}
	if w.CacheFile == "" {
		w.CacheFile = def.Weather.CacheFile
	}
	if w.CacheTTL == 0 {
		w.CacheTTL = def.Weather.CacheTTL
	}

	e := &c.Events
	if e.Calendars == nil {
		e.Calendars = []CalendarConfig{}
	}
	for i := range e.Calendars {
		if e.Calendars[i].ID == "" {
			e.Calendars[i].ID = e.Calendars[i].Name
		}
	}
	if e.Meals != nil && e.Meals.ID == "" {
		e.Meals.ID = "meals"
	}
	if e.Directions.BaseURL == "" {
		e.Directions.BaseURL = def.Events.Directions.BaseURL
	}
	if e.Directions.APIVersion == "" {
		e.Directions.APIVersion = def.Events.Directions.APIVersion
	}
	if e.ICSCacheDir == "" {
		e.ICSCacheDir = def.Events.ICSCacheDir
	}
	if e.CacheFile == "" {
		e.CacheFile = def.Events.CacheFile
	}
	if e.CacheTTL == 0 {
		e.CacheTTL = def.Events.CacheTTL
	}
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if c.Weather.CacheTTL <= 0 {
		errs = append(errs, errors.New("weather.cache_ttl must be positive"))
	}
	if c.Events.CacheTTL <= 0 {
		errs = append(errs, errors.New("events.cache_ttl must be positive"))
	}

	seen := make(map[string]bool, len(c.Events.Calendars))
	for i, cal := range c.Events.Calendars {
		if cal.ID == "" {
			errs = append(errs, fmt.Errorf("events.calendars[%d]: id or name is required", i))
		}
		if cal.URL == "" {
			errs = append(errs, fmt.Errorf("events.calendars[%d] (%s): url is required", i, cal.ID))
		}
		if seen[cal.ID] {
			errs = append(errs, fmt.Errorf("events.calendars[%d]: duplicate id %q", i, cal.ID))
		}
		seen[cal.ID] = true
	}
	if c.Events.Meals != nil && c.Events.Meals.URL == "" {
		errs = append(errs, errors.New("events.meals: url is required"))
	}
	for i, l := range c.Locations {
		if l.Match == "" {
			errs = append(errs, fmt.Errorf("locations[%d]: match is required", i))
		}
	}

	return errors.Join(errs...)
}

// Location loads the configured display timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - continue with the defaults
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - Environment variables (optionally from .env) override the file.
//   - Relative cache paths are resolved against the config file directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg, err := readOrCreate(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	cfg.resolvePaths(filepath.Dir(path))

	return cfg, nil
}

func readOrCreate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvWeatherAPIKey); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Weather.CacheFile = abs(c.Weather.CacheFile)
	c.Events.CacheFile = abs(c.Events.CacheFile)
	c.Events.ICSCacheDir = abs(c.Events.ICSCacheDir)
}

// Save writes the given configuration to the specified path atomically
// with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
