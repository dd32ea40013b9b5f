package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultEIABaseURL = "https://api.eia.gov/v2"
	henryHubSeries    = "NG.RNGWHHD.D"

	ServerName    = "eia-mcp-server"
	ServerVersion = "0.1.0"
)

var ErrMissingAPIKey = errors.New("EIA_API_KEY is not set")

// EIA serves natural gas prices from the EIA v2 series API and sample
// storage and production figures.
type EIA struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewEIAServer returns a Server with the three natural_gas tools registered.
func NewEIAServer(e *EIA) *Server {
	s := NewServer(ServerName, ServerVersion)
	s.Handle(ToolDefinition{
		Name:        "natural_gas.prices",
		Description: "Query natural gas prices from EIA API",
		InputSchema: json.RawMessage(`{"type":"object","properties":{` +
			`"series":{"type":"string","description":"Price series (e.g., henry_hub_spot)"},` +
			`"start":{"type":"string","description":"Start date YYYY-MM-DD"},` +
			`"end":{"type":"string","description":"End date YYYY-MM-DD"},` +
			`"frequency":{"type":"string","description":"Data frequency (daily, weekly, monthly)"}},` +
			`"required":["series"]}`),
	}, e.prices)
	s.Handle(ToolDefinition{
		Name:        "natural_gas.storage",
		Description: "Query natural gas storage data from EIA API",
		InputSchema: json.RawMessage(`{"type":"object","properties":{` +
			`"region":{"type":"string","description":"Region (e.g., lower48)"},` +
			`"start":{"type":"string","description":"Start date YYYY-MM-DD"},` +
			`"end":{"type":"string","description":"End date YYYY-MM-DD"},` +
			`"frequency":{"type":"string","description":"Data frequency (daily, weekly, monthly)"}},` +
			`"required":["region"]}`),
	}, storage)
	s.Handle(ToolDefinition{
		Name:        "natural_gas.production",
		Description: "Query natural gas production data from EIA API",
		InputSchema: json.RawMessage(`{"type":"object","properties":{` +
			`"region":{"type":"string","description":"Region"},` +
			`"start":{"type":"string","description":"Start date YYYY-MM-DD"},` +
			`"end":{"type":"string","description":"End date YYYY-MM-DD"}}}`),
	}, production)
	return s
}

type seriesResponse struct {
	Response struct {
		Data []map[string]any `json:"data"`
	} `json:"response"`
}

func (e *EIA) prices(ctx context.Context, args map[string]any) (any, error) {
	if e.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	start, _ := args["start"].(string)
	end, _ := args["end"].(string)
	series, _ := args["series"].(string)
	if !strings.HasPrefix(strings.ToUpper(series), "NG.") {
		series = henryHubSeries
	}

	base := e.BaseURL
	if base == "" {
		base = DefaultEIABaseURL
	}
	q := url.Values{"api_key": {e.APIKey}}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	u := strings.TrimRight(base, "/") + "/seriesid/" + url.PathEscape(series) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	hc := e.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eia request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eia request: unexpected status %d", resp.StatusCode)
	}
	var body seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode eia response: %w", err)
	}

	rows := make([]map[string]any, 0, len(body.Response.Data))
	for _, row := range body.Response.Data {
		date, _ := row["period"].(string)
		if date == "" {
			date, _ = row["date"].(string)
		}
		if date == "" {
			continue
		}
		if start != "" && date < start {
			continue
		}
		if end != "" && date > end {
			continue
		}
		rows = append(rows, row)
	}
	return map[string]any{"series": series, "data": rows}, nil
}

func storage(_ context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"region": args["region"],
		"data": []map[string]any{
			{"date": "2022-01-01", "storage": 2500},
			{"date": "2022-01-08", "storage": 2450},
		},
	}, nil
}

func production(_ context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"region": args["region"],
		"data": []map[string]any{
			{"date": "2023-01-01", "production": 95.5},
		},
	}, nil
}
