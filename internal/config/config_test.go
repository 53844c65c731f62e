package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
listen: 0.0.0.0:9000
timezone: Europe/Berlin
locations:
  - match: "Main Street 1"
    label: Home
  - match: office
    label: Work
weather:
  lat: 52.5
  lon: 13.4
  api_key: from-file
  cache_file: weather.json
  cache_ttl: 600
events:
  calendars:
    - id: family
      name: Family
      url: https://cal.example.com/family.ics
    - name: Work
      url: https://cal.example.com/work.ics
  meals:
    url: https://cal.example.com/food.ics
  directions:
    origin: Main Street 1
  cache_file: /var/lib/homepanel/events.json
  cache_ttl: 300
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 1800, cfg.Weather.CacheTTL)
	assert.Equal(t, 900, cfg.Events.CacheTTL)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_ParsesFileAndResolvesPaths(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	require.Len(t, cfg.Locations, 2)
	assert.Equal(t, "Home", cfg.Locations[0].Label)

	assert.Equal(t, filepath.Join(dir, "weather.json"), cfg.Weather.CacheFile)
	assert.Equal(t, "/var/lib/homepanel/events.json", cfg.Events.CacheFile)
	assert.Equal(t, filepath.Join(dir, "cache/ics"), cfg.Events.ICSCacheDir)
	assert.Equal(t, 10*time.Minute, cfg.Weather.TTL())
	assert.Equal(t, 5*time.Minute, cfg.Events.TTL())
	assert.Equal(t, 8, cfg.Weather.ForecastCount())

	require.Len(t, cfg.Events.Calendars, 2)
	assert.Equal(t, "Work", cfg.Events.Calendars[1].ID, "id falls back to name")
	require.NotNil(t, cfg.Events.Meals)
	assert.Equal(t, "meals", cfg.Events.Meals.ID)
	assert.Equal(t, "1", cfg.Events.Directions.APIVersion)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvWeatherAPIKey, "from-env")
	t.Setenv(EnvListen, ":7070")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Weather.APIKey)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "listen: [unterminated"))
	require.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	cfg.Weather.CacheTTL = -1
	cfg.Events.Calendars = []CalendarConfig{
		{ID: "a", URL: ""},
		{ID: "a", URL: "https://x/a.ics"},
	}
	cfg.Locations = []LocationLabel{{Label: "no match"}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "timezone")
	assert.Contains(t, msg, "weather.cache_ttl")
	assert.Contains(t, msg, "url is required")
	assert.Contains(t, msg, "duplicate id")
	assert.Contains(t, msg, "locations[0]")
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Events.Calendars = append(cfg.Events.Calendars, CalendarConfig{ID: "home", URL: "https://x/home.ics"})

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Events.Calendars, 1)
	assert.Equal(t, "home", loaded.Events.Calendars[0].ID)
}

func TestCalendarConfig_DisplayName(t *testing.T) {
	assert.Equal(t, "Family", CalendarConfig{ID: "fam", Name: "Family"}.DisplayName())
	assert.Equal(t, "fam", CalendarConfig{ID: "fam"}.DisplayName())
}
