package present

// weatherEmoji maps OpenWeather icon codes to the glyph shown on the panel.
// See https://openweathermap.org/weather-conditions for the code list.
var weatherEmoji = map[string]string{
	"01d": "☀",
	"01n": "\U0001f319",
	"02d": "⛅",
	"02n": "☁",
	"03d": "⛅",
	"03n": "☁",
	"04d": "☁",
	"04n": "☁",
	"09d": "\U0001f327",
	"09n": "\U0001f327",
	"10d": "\U0001f326",
	"10n": "\U0001f327",
	"11d": "⛈",
	"11n": "⛈",
	"13d": "\U0001f328",
	"13n": "\U0001f328",
	// mist
	"50d": "\U0001f327",
	"50n": "\U0001f327",
}

// Icon returns the emoji for an OpenWeather icon code. Unknown codes are
// returned unchanged.
func Icon(code string) string {
	if e, ok := weatherEmoji[code]; ok {
		return e
	}
	return code
}
