package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadFixture(t *testing.T) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile("testdata/san_francisco.json")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func encode(t *testing.T, doc map[string]interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

// upstream serves body with status and counts requests.
type upstream struct {
	server *httptest.Server
	hits   atomic.Int32
	last   atomic.Value // *http.Request
}

func newUpstream(t *testing.T, status int, body []byte) *upstream {
	t.Helper()
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.last.Store(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) lastRequest() *http.Request {
	r, _ := u.last.Load().(*http.Request)
	return r
}

func testConfig() ClientConfig {
	return ClientConfig{
		Timeout:        2 * time.Second,
		UserAgent:      "weather-dashboard-test",
		Threshold:      3,
		BreakerTimeout: time.Minute,
	}
}

func newTestClient(baseURL string) *WttrClient {
	return NewWttrClient(baseURL, testConfig(), zap.NewNop())
}

func TestFetchWeather_SanFrancisco(t *testing.T) {
	up := newUpstream(t, http.StatusOK, encode(t, loadFixture(t)))
	c := newTestClient(up.server.URL)

	report, err := c.FetchWeather(context.Background(), "San Francisco")
	require.NoError(t, err)

	assert.Equal(t, "San Francisco", report.Query)
	assert.Equal(t, "68", report.Current.Temperature)
	assert.Equal(t, "20", report.Current.TemperatureC)
	assert.Equal(t, "Sunny", report.Current.Condition)
	assert.Equal(t, "66", report.Current.FeelsLike)
	assert.Equal(t, "64", report.Current.Humidity)
	assert.Equal(t, "5", report.Current.UVIndex)
	assert.Equal(t, "10", report.Current.Visibility)
	assert.Equal(t, "San Francisco", report.Current.Location)
	assert.Equal(t, "California", report.Current.Region)
	// fixture only has windspeedMiles
	assert.Equal(t, "9", report.Current.WindSpeed)

	require.Len(t, report.Forecast, 3)
	want := []struct{ date, max, min, cond, rain string }{
		{"2026-10-19", "71", "55", "Sunny", "0"},
		{"2026-10-20", "67", "54", "Partly cloudy", "12"},
		{"2026-10-21", "63", "53", "Patchy rain nearby", "78"},
	}
	for i, w := range want {
		day := report.Forecast[i]
		assert.Equal(t, w.date, day.Date, "day %d", i)
		assert.Equal(t, w.max, day.MaxTemp, "day %d", i)
		assert.Equal(t, w.min, day.MinTemp, "day %d", i)
		assert.Equal(t, w.cond, day.Condition, "day %d", i)
		assert.Equal(t, w.rain, day.ChanceOfRain, "day %d", i)
	}

	assert.EqualValues(t, 1, up.hits.Load())
	req := up.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "j1", req.URL.Query().Get("format"))
	assert.Equal(t, "/San%20Francisco", req.URL.EscapedPath())
	assert.Equal(t, "weather-dashboard-test", req.Header.Get("User-Agent"))
}

func TestFetchWeather_PrefersWindspeedMph(t *testing.T) {
	doc := loadFixture(t)
	current := doc["current_condition"].([]interface{})[0].(map[string]interface{})
	current["windspeedMph"] = "12"
	up := newUpstream(t, http.StatusOK, encode(t, doc))

	report, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "San Francisco")
	require.NoError(t, err)
	assert.Equal(t, "12", report.Current.WindSpeed)
}

func TestFetchWeather_ForecastLength(t *testing.T) {
	tests := []struct {
		name string
		days int
		want int
	}{
		{name: "more than three days is truncated", days: 5, want: 3},
		{name: "exactly three days", days: 3, want: 3},
		{name: "short list is kept", days: 1, want: 1},
		{name: "no days", days: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadFixture(t)
			base := doc["weather"].([]interface{})
			days := make([]interface{}, 0, tt.days)
			for i := 0; i < tt.days; i++ {
				day := map[string]interface{}{}
				for k, v := range base[i%len(base)].(map[string]interface{}) {
					day[k] = v
				}
				day["date"] = time.Date(2026, 10, 19+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
				days = append(days, day)
			}
			doc["weather"] = days
			up := newUpstream(t, http.StatusOK, encode(t, doc))

			report, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "San Francisco")
			require.NoError(t, err)
			require.Len(t, report.Forecast, tt.want)
			for i, day := range report.Forecast {
				assert.Equal(t, days[i].(map[string]interface{})["date"], day.Date)
			}
		})
	}
}

func TestFetchWeather_MissingWeatherKey(t *testing.T) {
	doc := loadFixture(t)
	delete(doc, "weather")
	up := newUpstream(t, http.StatusOK, encode(t, doc))

	report, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "San Francisco")
	require.NoError(t, err)
	assert.Empty(t, report.Forecast)
}

func TestFetchWeather_NonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			// A valid body must not matter.
			up := newUpstream(t, status, encode(t, loadFixture(t)))

			report, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "Atlantis")
			require.Error(t, err)
			assert.Nil(t, report)
			assert.Equal(t, "City not found", err.Error())
			assert.Equal(t, KindStatus, KindOf(err))

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, status, statusErr.Code)
			assert.EqualValues(t, 1, up.hits.Load(), "no retry by default")
		})
	}
}

func TestFetchWeather_InvalidJSON(t *testing.T) {
	up := newUpstream(t, http.StatusOK, []byte("<html>Unknown location</html>"))

	_, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "San Francisco")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindDecode, fetchErr.Kind)
	assert.Equal(t, MessageCityNotFound, fetchErr.Message)
}

func TestFetchWeather_UnexpectedShape(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]interface{})
	}{
		{
			name:   "no current condition",
			mutate: func(doc map[string]interface{}) { doc["current_condition"] = []interface{}{} },
		},
		{
			name:   "no nearest area",
			mutate: func(doc map[string]interface{}) { delete(doc, "nearest_area") },
		},
		{
			name: "current condition without description",
			mutate: func(doc map[string]interface{}) {
				current := doc["current_condition"].([]interface{})[0].(map[string]interface{})
				delete(current, "weatherDesc")
			},
		},
		{
			name: "day with too few hourly samples",
			mutate: func(doc map[string]interface{}) {
				day := doc["weather"].([]interface{})[1].(map[string]interface{})
				day["hourly"] = day["hourly"].([]interface{})[:4]
			},
		},
		{
			name: "wrong type",
			mutate: func(doc map[string]interface{}) {
				doc["current_condition"] = "sunny"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadFixture(t)
			tt.mutate(doc)
			up := newUpstream(t, http.StatusOK, encode(t, doc))

			report, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "San Francisco")
			require.Error(t, err)
			assert.Nil(t, report)
			assert.Equal(t, MessageCityNotFound, err.Error())
			assert.Contains(t, []ErrorKind{KindShape, KindDecode}, KindOf(err))
		})
	}
}

func TestFetchWeather_TransportFailure(t *testing.T) {
	up := newUpstream(t, http.StatusOK, nil)
	baseURL := up.server.URL
	up.server.Close()

	_, err := newTestClient(baseURL).FetchWeather(context.Background(), "San Francisco")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, MessageCityNotFound, err.Error())
}

type failingTransport struct {
	requests []*http.Request
	err      error
}

func (f *failingTransport) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	return nil, f.err
}

func TestFetchWeather_CustomTransport(t *testing.T) {
	cause := errors.New("connection reset")
	transport := &failingTransport{err: cause}
	c := NewWttrClientWithHTTP("https://example.test/", transport, testConfig(), zap.NewNop())

	_, err := c.FetchWeather(context.Background(), "Oslo")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.ErrorIs(t, err, cause)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "https://example.test/Oslo?format=j1", req.URL.String())
	assert.Equal(t, "weather-dashboard-test", req.Header.Get("User-Agent"))
}

func TestFetchWeather_EmptyLocation(t *testing.T) {
	up := newUpstream(t, http.StatusOK, encode(t, loadFixture(t)))

	_, err := newTestClient(up.server.URL).FetchWeather(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, KindInvalid, KindOf(err))
	assert.EqualValues(t, 0, up.hits.Load())
}

func TestRequestURL(t *testing.T) {
	c := newTestClient("https://wttr.in/")

	tests := map[string]string{
		"San Francisco":    "https://wttr.in/San%20Francisco?format=j1",
		"London,UK":        "https://wttr.in/London%2CUK?format=j1",
		"São Paulo":        "https://wttr.in/S%C3%A3o%20Paulo?format=j1",
		"a/b?c":            "https://wttr.in/a%2Fb%3Fc?format=j1",
		"A+B":              "https://wttr.in/A%2BB?format=j1",
		"Rock & Roll=1":    "https://wttr.in/Rock%20%26%20Roll%3D1?format=j1",
		"$:@#":             "https://wttr.in/%24%3A%40%23?format=j1",
		"St. John's (NL)*": "https://wttr.in/St.%20John's%20(NL)*?format=j1",
		"~Prague-1_x!":     "https://wttr.in/~Prague-1_x!?format=j1",
		"Prague":           "https://wttr.in/Prague?format=j1",
	}
	for location, want := range tests {
		assert.Equal(t, want, c.RequestURL(location), location)
	}

	assert.Equal(t, DefaultWttrURL+"/Oslo?format=j1", newTestClient("").RequestURL("Oslo"))
}
