package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ecoguardian/ecoguardian"
)

const openWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeather fetches live readings from the OpenWeather geocoding, current
// weather and air pollution APIs. Transport and non-200 failures surface as
// ErrUnavailable; deadline expiry surfaces as ErrTimeout, so the retry and
// breaker layers can tell them apart from bad input.
type OpenWeather struct {
	apiKey  string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewOpenWeather(apiKey string) *OpenWeather {
	return &OpenWeather{
		apiKey:  apiKey,
		baseURL: openWeatherBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
}

type geoResult struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type weatherResult struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type pollutionResult struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
	} `json:"list"`
}

func (s *OpenWeather) Fetch(ctx context.Context, entityID string) (ecoguardian.Reading, error) {
	if entityID == "" {
		return ecoguardian.Reading{}, &ecoguardian.ValidationError{
			Field: "entityID", Reason: "city must not be empty"}
	}

	var geo []geoResult
	geoURL := fmt.Sprintf("%s/geo/1.0/direct?q=%s&limit=1&appid=%s",
		s.baseURL, url.QueryEscape(entityID), s.apiKey)
	if err := s.getJSON(ctx, geoURL, &geo); err != nil {
		return ecoguardian.Reading{}, err
	}
	if len(geo) == 0 {
		return ecoguardian.Reading{}, fmt.Errorf("city %q: %w", entityID, ecoguardian.ErrNotFound)
	}

	var weather weatherResult
	weatherURL := fmt.Sprintf("%s/data/2.5/weather?lat=%f&lon=%f&units=metric&appid=%s",
		s.baseURL, geo[0].Lat, geo[0].Lon, s.apiKey)
	if err := s.getJSON(ctx, weatherURL, &weather); err != nil {
		return ecoguardian.Reading{}, err
	}

	var pollution pollutionResult
	pollutionURL := fmt.Sprintf("%s/data/2.5/air_pollution?lat=%f&lon=%f&appid=%s",
		s.baseURL, geo[0].Lat, geo[0].Lon, s.apiKey)
	if err := s.getJSON(ctx, pollutionURL, &pollution); err != nil {
		return ecoguardian.Reading{}, err
	}
	if len(pollution.List) == 0 {
		return ecoguardian.Reading{}, fmt.Errorf("no pollution data for %q: %w",
			entityID, ecoguardian.ErrUnavailable)
	}

	return ecoguardian.Reading{
		City:         entityID,
		AQI:          pollution.List[0].Main.AQI,
		TemperatureC: weather.Main.Temp,
		HumidityPct:  weather.Main.Humidity,
		WindSpeedMPS: weather.Wind.Speed,
		CollectedAt:  s.now(),
	}, nil
}

func (s *OpenWeather) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("openweather request: %w", ecoguardian.ErrTimeout)
		}
		return fmt.Errorf("openweather request: %v: %w", err, ecoguardian.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openweather status %d: %w", resp.StatusCode, ecoguardian.ErrUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode openweather response: %w", err)
	}
	return nil
}
