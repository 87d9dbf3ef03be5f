// Package usgs reads daily values for the Lake Powell gage from the USGS
// National Water Information System.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
)

const source = "usgs"

// Parameter codes requested from the daily-values service.
const (
	ParamGageHeight = "00065"
	ParamStorage    = "00062"
	ParamDischarge  = "00060"
)

var paramMetric = map[string]reconcile.Metric{
	ParamGageHeight: reconcile.Elevation,
	ParamStorage:    reconcile.Content,
	ParamDischarge:  reconcile.Inflow,
}

// SiteInfo identifies the gage a response came from.
type SiteInfo struct {
	Name      string
	Code      string
	Latitude  *float64
	Longitude *float64
}

// Client queries the NWIS dv endpoint for one site.
type Client struct {
	fetch   *upstream.Fetcher
	baseURL string
	site    string
	params  []string
	logger  *slog.Logger
}

// NewClient creates a client for the reservoir's USGS site. Only gage height
// and storage are requested; discharge at the dam is not the lake inflow.
func NewClient(res domain.Reservoir, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		fetch:   upstream.New(source, timeout, metrics),
		baseURL: "https://waterservices.usgs.gov/nwis/dv/",
		site:    res.USGSSiteID,
		params:  []string{ParamGageHeight, ParamStorage},
		logger:  logger,
	}
}

// Strategy exposes the client to the reconciliation chain.
func (c *Client) Strategy() reconcile.Strategy {
	return reconcile.Strategy{Name: source, Fetch: c.FetchRange}
}

type dvResponse struct {
	Value struct {
		TimeSeries []timeSeries `json:"timeSeries"`
	} `json:"value"`
}

type timeSeries struct {
	SourceInfo struct {
		SiteName string `json:"siteName"`
		SiteCode []struct {
			Value string `json:"value"`
		} `json:"siteCode"`
		GeoLocation struct {
			GeogLocation struct {
				Latitude  *float64 `json:"latitude"`
				Longitude *float64 `json:"longitude"`
			} `json:"geogLocation"`
		} `json:"geoLocation"`
	} `json:"sourceInfo"`
	Variable struct {
		VariableCode []struct {
			Value string `json:"value"`
		} `json:"variableCode"`
		VariableName string   `json:"variableName"`
		NoDataValue  *float64 `json:"noDataValue"`
	} `json:"variable"`
	Values []struct {
		Value []struct {
			Value      string   `json:"value"`
			DateTime   string   `json:"dateTime"`
			Qualifiers []string `json:"qualifiers"`
		} `json:"value"`
	} `json:"values"`
}

// FetchRange returns the requested parameters as candidate series.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
	series, _, err := c.Fetch(ctx, start, end)
	return series, err
}

// Fetch returns the series together with the site the service answered for.
// A response for a different site is used but logged.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) (reconcile.Series, *SiteInfo, error) {
	q := url.Values{
		"format":      {"json"},
		"sites":       {c.site},
		"parameterCd": {strings.Join(c.params, ",")},
		"startDT":     {start.Format(time.DateOnly)},
		"endDT":       {end.Format(time.DateOnly)},
		"siteStatus":  {"all"},
	}
	body, err := c.fetch.Get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, nil, err
	}

	var resp dvResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.fetch.Record("error")
		return nil, nil, fmt.Errorf("decode usgs response: %w", err)
	}
	if len(resp.Value.TimeSeries) == 0 {
		c.fetch.Record("empty")
		return reconcile.Series{}, nil, nil
	}

	first := resp.Value.TimeSeries[0].SourceInfo
	info := &SiteInfo{
		Name:      first.SiteName,
		Latitude:  first.GeoLocation.GeogLocation.Latitude,
		Longitude: first.GeoLocation.GeogLocation.Longitude,
	}
	if len(first.SiteCode) > 0 {
		info.Code = first.SiteCode[0].Value
	}
	if info.Code != c.site {
		c.logger.Warn("usgs site code mismatch", "expected", c.site, "got", info.Code)
	}

	out := reconcile.Series{}
	for _, ts := range resp.Value.TimeSeries {
		if len(ts.Variable.VariableCode) == 0 || len(ts.Values) == 0 {
			continue
		}
		code := ts.Variable.VariableCode[0].Value
		metric, ok := paramMetric[code]
		if !ok {
			c.logger.Debug("ignoring usgs parameter", "code", code, "name", ts.Variable.VariableName)
			continue
		}
		provisional := 0
		for _, v := range ts.Values[0].Value {
			value := domain.ParseNumber(v.Value)
			if value == nil || (ts.Variable.NoDataValue != nil && *value == *ts.Variable.NoDataValue) {
				continue
			}
			d, ok := domain.ParseDate(v.DateTime)
			if !ok {
				continue
			}
			for _, q := range v.Qualifiers {
				if q == "P" {
					provisional++
					break
				}
			}
			out.Add(metric, reconcile.Reading{Timestamp: d, Value: *value, Source: source})
		}
		if provisional > 0 {
			c.logger.Debug("usgs provisional values", "code", code, "count", provisional)
		}
	}

	if out.Empty() {
		c.fetch.Record("empty")
	} else {
		c.fetch.Record("success")
	}
	return out, info, nil
}
