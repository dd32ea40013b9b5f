// Package gasflow queries exported gas quantities from the ENTSOG transparency platform.
package gasflow

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gasdesk/agent-server/internal/agent/tools"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const (
	DefaultBaseURL = "https://transparency.entsog.eu/api/v1"
	maxBodyBytes   = 32 << 20
)

// ErrPointNotFound is returned when no connection point carries the requested label.
var ErrPointNotFound = errors.New("connection point not found")

// Client talks to the ENTSOG REST API. Outbound requests share one rate limiter.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRate limits outbound requests to rps with a burst of one. rps <= 0 disables limiting.
func WithRate(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FlowRecord is one daily physical flow observation.
type FlowRecord struct {
	Date          string  `json:"date"`
	Value         float64 `json:"value"`
	Unit          string  `json:"unit"`
	Indicator     string  `json:"indicator,omitempty"`
	OperatorLabel string  `json:"operatorLabel,omitempty"`
	FlowStatus    string  `json:"flowStatus,omitempty"`
	DirectionKey  string  `json:"directionKey,omitempty"`
}

// Report is the exported quantity for one point and period.
type Report struct {
	PointLabel string       `json:"point_label"`
	PointKey   string       `json:"point_key"`
	PeriodFrom string       `json:"period_from"`
	PeriodTo   string       `json:"period_to"`
	Total      float64      `json:"total"`
	Unit       string       `json:"unit"`
	Results    []FlowRecord `json:"results"`
	Summary    string       `json:"system_message"`
}

type connectionPoint struct {
	Key        string `json:"key"`
	PointKey   string `json:"pointKey"`
	Label      string `json:"label"`
	PointLabel string `json:"pointLabel"`
}

func (p connectionPoint) key() string   { return cmp.Or(p.Key, p.PointKey) }
func (p connectionPoint) label() string { return cmp.Or(p.Label, p.PointLabel) }

type operationalData struct {
	GasDay        string    `json:"gasDay"`
	PeriodFrom    string    `json:"periodFrom"`
	PeriodTo      string    `json:"periodTo"`
	Value         flexFloat `json:"value"`
	Unit          string    `json:"unit"`
	Indicator     string    `json:"indicator"`
	OperatorLabel string    `json:"operatorLabel"`
	FlowStatus    string    `json:"flowStatus"`
	DirectionKey  string    `json:"directionKey"`
}

// flexFloat accepts numbers, numeric strings and null.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("value %q: %w", s, err)
	}
	f.Value, f.Valid = v, true
	return nil
}

// ExportedQuantity resolves the point label to its key and sums the daily exit flows.
func (c *Client) ExportedQuantity(ctx context.Context, pointLabel, from, to string) (Report, error) {
	key, err := c.pointKey(ctx, pointLabel)
	if err != nil {
		return Report{}, err
	}

	q := url.Values{}
	q.Set("periodFrom", from)
	q.Set("periodTo", to)
	q.Set("indicator", "Physical Flow")
	q.Set("pointKey", key)
	q.Set("periodType", "day")
	q.Set("directionKey", "exit")
	q.Set("limit", "-1")

	var body struct {
		OperationalData json.RawMessage `json:"operationalData"`
	}
	if err := c.getJSON(ctx, "/operationaldatas", q, &body); err != nil {
		return Report{}, err
	}
	data, err := decodeOperational(body.OperationalData)
	if err != nil {
		return Report{}, tools.Transport(err)
	}

	report := Report{PointLabel: pointLabel, PointKey: key, PeriodFrom: from, PeriodTo: to, Unit: "kWh", Results: []FlowRecord{}}
	for _, d := range data {
		if !d.Value.Valid {
			continue
		}
		rec := FlowRecord{
			Date:          cmp.Or(d.GasDay, d.PeriodFrom, d.PeriodTo),
			Value:         d.Value.Value,
			Unit:          cmp.Or(d.Unit, "kWh"),
			Indicator:     d.Indicator,
			OperatorLabel: d.OperatorLabel,
			FlowStatus:    d.FlowStatus,
			DirectionKey:  d.DirectionKey,
		}
		report.Results = append(report.Results, rec)
		report.Total += rec.Value
	}
	slices.SortStableFunc(report.Results, func(a, b FlowRecord) int { return cmp.Compare(a.Date, b.Date) })
	report.Summary = fmt.Sprintf("Returned %d value(s), total: %.0f kWh from %s to %s according to ENTSOG transparency data.",
		len(report.Results), report.Total, from, to)
	return report, nil
}

// decodeOperational accepts a list, a single object or null.
func decodeOperational(raw json.RawMessage) ([]operationalData, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, nil
	case strings.HasPrefix(trimmed, "{"):
		var one operationalData
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode operational data: %w", err)
		}
		return []operationalData{one}, nil
	default:
		var many []operationalData
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, fmt.Errorf("decode operational data: %w", err)
		}
		return many, nil
	}
}

func (c *Client) pointKey(ctx context.Context, label string) (string, error) {
	var body struct {
		ConnectionPoints []connectionPoint `json:"connectionPoints"`
	}
	if err := c.getJSON(ctx, "/connectionPoints", url.Values{"extended": {"1"}, "limit": {"-1"}}, &body); err != nil {
		return "", err
	}
	for _, p := range body.ConnectionPoints {
		if strings.EqualFold(strings.TrimSpace(p.label()), strings.TrimSpace(label)) && p.key() != "" {
			return p.key(), nil
		}
	}
	return "", tools.Invalid(fmt.Sprintf("%v: %s", ErrPointNotFound, label))
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the limiter refuses early when the wait would outlast the deadline
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("rate limit wait for %s: %w", path, context.DeadlineExceeded)
		}
		return tools.Transport(err)
	}
	u := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return tools.Transport(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return tools.Transport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return tools.Transport(fmt.Errorf("read %s: %w", path, err))
	}
	if resp.StatusCode != http.StatusOK {
		logx.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("entsog request failed")
		return tools.Transport(fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return tools.Transport(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}
