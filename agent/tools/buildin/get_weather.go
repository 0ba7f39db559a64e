package buildin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/tools"
	"github.com/tidwall/gjson"
)

const DefaultWeatherURL = "https://wttr.in"

const extractLocationPrompt = "Extract the city or place the user asks about. Reply with the place name only, in English if possible. Reply NONE if there is no place."

type weatherInput struct {
	Location string `json:"location,omitempty" jsonschema_description:"City or location name."`
	Query    string `json:"query,omitempty" jsonschema_description:"The user's original weather question, used when location is unknown."`
}

// WeatherOptions configures the weather source.
type WeatherOptions struct {
	BaseURL string
	Client  *http.Client
}

func NewGetWeatherTool(model llm.Generator, opts WeatherOptions) tools.Tool {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return tools.New(
		"get_weather",
		func(ctx context.Context, args string) (string, error) {
			var input weatherInput
			if err := tools.DecodeArgs(args, &input); err != nil {
				return "", err
			}
			location := strings.TrimSpace(input.Location)
			if location == "" && strings.TrimSpace(input.Query) != "" && model != nil {
				extracted, err := model.Generate(llm.WithoutCallbacks(ctx), extractLocationPrompt, input.Query)
				if err != nil {
					return "", fmt.Errorf("extract location: %w", err)
				}
				extracted = strings.Trim(strings.TrimSpace(extracted), `"'.。`)
				if !strings.EqualFold(extracted, "none") {
					location = extracted
				}
			}
			if location == "" {
				return "", fmt.Errorf("location is required")
			}

			weatherURL := baseURL + "/" + url.PathEscape(location) + "?format=j1"
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, weatherURL, nil)
			if err != nil {
				return "", fmt.Errorf("build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("weather request: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("weather http status: %s", resp.Status)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", fmt.Errorf("read response: %w", err)
			}
			return formatWeather(location, body)
		},
		tools.WithDescription("Get the current weather and a short forecast for a location. Pass the place in location, or the user's question in query."),
		tools.WithParameters(tools.GenerateSchema[weatherInput]()),
	)
}

// formatWeather renders wttr.in's j1 payload as plain text.
func formatWeather(location string, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("weather response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	cur := doc.Get("current_condition.0")
	if !cur.Exists() {
		return "", fmt.Errorf("no weather data for %q", location)
	}

	place := location
	if area := doc.Get("nearest_area.0.areaName.0.value").String(); area != "" {
		place = area
		if country := doc.Get("nearest_area.0.country.0.value").String(); country != "" {
			place += ", " + country
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Weather for %s:\n", place)
	fmt.Fprintf(&b, "Now: %s, %s°C (feels like %s°C), humidity %s%%, wind %s km/h %s\n",
		cur.Get("weatherDesc.0.value").String(),
		cur.Get("temp_C").String(),
		cur.Get("FeelsLikeC").String(),
		cur.Get("humidity").String(),
		cur.Get("windspeedKmph").String(),
		cur.Get("winddir16Point").String(),
	)
	doc.Get("weather").ForEach(func(_, day gjson.Result) bool {
		desc := day.Get("hourly.4.weatherDesc.0.value").String()
		if desc == "" {
			desc = day.Get("hourly.0.weatherDesc.0.value").String()
		}
		fmt.Fprintf(&b, "%s: %s, %s°C to %s°C\n",
			day.Get("date").String(),
			desc,
			day.Get("mintempC").String(),
			day.Get("maxtempC").String(),
		)
		return true
	})
	return strings.TrimRight(b.String(), "\n"), nil
}
