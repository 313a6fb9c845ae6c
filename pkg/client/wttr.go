package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/bobby-s-dev/weather-dashboard/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultWttrURL = "https://wttr.in"

	// ForecastDays is the number of daily entries kept from the upstream.
	ForecastDays = 3
	// representativeSample is the hourly slot read for a day's condition:
	// index 4 of the 8 three-hourly samples, the one nearest midday.
	representativeSample = 4
)

type WttrClient struct {
	*BaseClient
	baseURL string
}

type wttrValue struct {
	Value string `json:"value"`
}

type WttrResponse struct {
	CurrentCondition []struct {
		TempF          string      `json:"temp_F"`
		TempC          string      `json:"temp_C"`
		FeelsLikeF     string      `json:"FeelsLikeF"`
		Humidity       string      `json:"humidity"`
		WindspeedMph   string      `json:"windspeedMph"`
		WindspeedMiles string      `json:"windspeedMiles"`
		UVIndex        string      `json:"uvIndex"`
		Visibility     string      `json:"visibility"`
		WeatherDesc    []wttrValue `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []wttrValue `json:"areaName"`
		Region   []wttrValue `json:"region"`
		Country  []wttrValue `json:"country"`
	} `json:"nearest_area"`
	Weather []struct {
		Date     string `json:"date"`
		MaxTempF string `json:"maxtempF"`
		MinTempF string `json:"mintempF"`
		Hourly   []struct {
			Time         string      `json:"time"`
			ChanceOfRain string      `json:"chanceofrain"`
			WeatherDesc  []wttrValue `json:"weatherDesc"`
		} `json:"hourly"`
	} `json:"weather"`
}

func NewWttrClient(baseURL string, config ClientConfig, logger *zap.Logger) *WttrClient {
	return &WttrClient{
		BaseClient: NewBaseClient("wttr", config, logger),
		baseURL:    normalizeBaseURL(baseURL),
	}
}

// NewWttrClientWithHTTP builds a client over a caller-supplied transport.
func NewWttrClientWithHTTP(baseURL string, httpClient HTTPClient, config ClientConfig, logger *zap.Logger) *WttrClient {
	return &WttrClient{
		BaseClient: newBaseClient("wttr", httpClient, config, logger),
		baseURL:    normalizeBaseURL(baseURL),
	}
}

func normalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultWttrURL
	}
	return strings.TrimRight(baseURL, "/")
}

// RequestURL returns the upstream URL for location.
func (c *WttrClient) RequestURL(location string) string {
	return c.baseURL + "/" + escapeLocation(location) + "?format=j1"
}

var unreservedMarks = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escapeLocation encodes location as one path segment. Every reserved
// character is escaped, including + which the upstream reads as a space.
// Letters, digits and - _ . ! ~ * ' ( ) pass through.
func escapeLocation(location string) string {
	return unreservedMarks.Replace(url.QueryEscape(location))
}

// FetchWeather issues one request for location and reshapes the response.
// Every failure is a *FetchError.
func (c *WttrClient) FetchWeather(ctx context.Context, location string) (*models.Report, error) {
	if strings.TrimSpace(location) == "" {
		return nil, newFetchError(KindInvalid, errors.New("location is empty"))
	}

	data, err := c.Get(ctx, c.RequestURL(location))
	if err != nil {
		return nil, classifyGetError(err)
	}

	var response WttrResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, newFetchError(KindDecode, err)
	}

	report, fetchErr := toReport(location, &response)
	if fetchErr != nil {
		return nil, fetchErr
	}
	return report, nil
}

func toReport(query string, response *WttrResponse) (*models.Report, *FetchError) {
	if len(response.CurrentCondition) == 0 {
		return nil, shapeError("current_condition is empty")
	}
	current := response.CurrentCondition[0]
	if len(current.WeatherDesc) == 0 {
		return nil, shapeError("current_condition[0].weatherDesc is empty")
	}
	if len(response.NearestArea) == 0 {
		return nil, shapeError("nearest_area is empty")
	}
	area := response.NearestArea[0]
	if len(area.AreaName) == 0 || len(area.Region) == 0 {
		return nil, shapeError("nearest_area[0] is missing areaName or region")
	}

	wind := current.WindspeedMph
	if wind == "" {
		wind = current.WindspeedMiles
	}

	report := &models.Report{
		Query: query,
		Current: models.CurrentConditions{
			Location:     area.AreaName[0].Value,
			Region:       area.Region[0].Value,
			Temperature:  current.TempF,
			TemperatureC: current.TempC,
			FeelsLike:    current.FeelsLikeF,
			Condition:    current.WeatherDesc[0].Value,
			Humidity:     current.Humidity,
			WindSpeed:    wind,
			UVIndex:      current.UVIndex,
			Visibility:   current.Visibility,
		},
	}

	days := response.Weather
	if len(days) > ForecastDays {
		days = days[:ForecastDays]
	}
	report.Forecast = make([]models.ForecastDay, 0, len(days))
	for i, day := range days {
		if len(day.Hourly) <= representativeSample {
			return nil, shapeError("weather[%d].hourly has %d samples", i, len(day.Hourly))
		}
		sample := day.Hourly[representativeSample]
		if len(sample.WeatherDesc) == 0 {
			return nil, shapeError("weather[%d].hourly[%d].weatherDesc is empty", i, representativeSample)
		}
		report.Forecast = append(report.Forecast, models.ForecastDay{
			Date:         day.Date,
			MaxTemp:      day.MaxTempF,
			MinTemp:      day.MinTempF,
			Condition:    sample.WeatherDesc[0].Value,
			ChanceOfRain: sample.ChanceOfRain,
		})
	}

	return report, nil
}
