package models

// CurrentConditions holds the display values of the upstream's first
// current-conditions record. Values are kept as the upstream strings.
type CurrentConditions struct {
	Location     string `json:"location"`
	Region       string `json:"region"`
	Temperature  string `json:"temperature"`
	TemperatureC string `json:"temperature_c"`
	FeelsLike    string `json:"feels_like"`
	Condition    string `json:"condition"`
	Humidity     string `json:"humidity"`
	WindSpeed    string `json:"wind_speed"`
	UVIndex      string `json:"uv_index"`
	Visibility   string `json:"visibility"`
}

// ForecastDay is one daily forecast entry. Condition and ChanceOfRain come
// from a single sub-daily sample, not an aggregate over the day.
type ForecastDay struct {
	Date         string `json:"date"`
	MaxTemp      string `json:"max_temp"`
	MinTemp      string `json:"min_temp"`
	Condition    string `json:"condition"`
	ChanceOfRain string `json:"chance_of_rain"`
}

// Report is the result of one successful fetch attempt. It is never
// modified after creation; a newer fetch replaces it wholesale.
type Report struct {
	Query    string            `json:"query"`
	Current  CurrentConditions `json:"current"`
	Forecast []ForecastDay     `json:"forecast"`
}
