// Package rise reads Lake Powell series from the Reclamation Information
// Sharing Environment (RISE) API. Three access paths are offered because each
// has failed independently over the years: the bulk download, the paginated
// result catalog and the older locationId query.
package rise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
)

const (
	downloadSource = "rise-download"
	catalogSource  = "rise-catalog"
	legacySource   = "rise-legacy"

	defaultMaxPages = 5000
)

// Options configures request timeouts.
type Options struct {
	Timeout     time.Duration
	BulkTimeout time.Duration
}

// Client talks to the RISE result endpoints.
type Client struct {
	download *upstream.Fetcher
	catalog  *upstream.Fetcher
	legacy   *upstream.Fetcher
	baseURL  string
	res      domain.Reservoir
	maxPages int
	logger   *slog.Logger
}

// NewClient creates a RISE client for the reservoir profile.
func NewClient(res domain.Reservoir, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		download: upstream.New(downloadSource, opts.BulkTimeout, metrics),
		catalog:  upstream.New(catalogSource, opts.Timeout, metrics),
		legacy:   upstream.New(legacySource, opts.Timeout, metrics),
		baseURL:  "https://data.usbr.gov/rise/api/result",
		res:      res,
		maxPages: defaultMaxPages,
		logger:   logger,
	}
}

// Strategies returns the three access paths in preference order.
func (c *Client) Strategies() (download, catalog, legacy reconcile.Strategy) {
	return reconcile.Strategy{Name: downloadSource, Fetch: c.FetchDownload},
		reconcile.Strategy{Name: catalogSource, Fetch: c.FetchCatalog},
		reconcile.Strategy{Name: legacySource, Fetch: c.FetchLegacy}
}

// record is one result row. Download rows carry the fields directly; catalog
// rows nest them under "attributes".
type record struct {
	Attributes  *record         `json:"attributes"`
	DateTime    string          `json:"dateTime"`
	DateTimeAlt string          `json:"datetime"`
	Date        string          `json:"Date"`
	Timestamp   string          `json:"timestamp"`
	Result      json.RawMessage `json:"result"`
	Value       json.RawMessage `json:"value"`
	ValueAlt    json.RawMessage `json:"Value"`
	ParameterID json.Number     `json:"parameterId"`
}

func (r record) flat() record {
	if r.Attributes != nil {
		return *r.Attributes
	}
	return r
}

// reading converts a row to a candidate reading. Rows without a parsable
// timestamp or numeric value are dropped.
func (r record) reading(source string) (reconcile.Reading, bool) {
	r = r.flat()
	var ts time.Time
	var err error = domain.ErrInvalidDate
	for _, s := range []string{r.DateTime, r.DateTimeAlt, r.Date, r.Timestamp} {
		if s == "" {
			continue
		}
		if ts, err = domain.ParseTimestamp(s); err == nil {
			break
		}
	}
	if err != nil {
		return reconcile.Reading{}, false
	}

	var v *float64
	for _, raw := range []json.RawMessage{r.Result, r.Value, r.ValueAlt} {
		if len(raw) == 0 {
			continue
		}
		var leaf any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if dec.Decode(&leaf) != nil {
			continue
		}
		if v = domain.ParseNumber(leaf); v != nil {
			break
		}
	}
	if v == nil {
		return reconcile.Reading{}, false
	}
	return reconcile.Reading{Timestamp: ts, Value: *v, Source: source, Param: r.ParameterID.String()}, true
}

// decodeRecords accepts a bare array, {"Results": [...]}, {"data": [...]} or
// an object whose numeric-string keys hold the rows.
func decodeRecords(body []byte) ([]record, error) {
	var list []record
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode rise response: %w", err)
	}
	for _, key := range []string{"Results", "data"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list, nil
		}
	}

	var keys []int
	for k := range obj {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	if len(keys) > 0 {
		sort.Ints(keys)
		for _, k := range keys {
			var r record
			if err := json.Unmarshal(obj[strconv.Itoa(k)], &r); err == nil {
				list = append(list, r)
			}
		}
		return list, nil
	}
	if _, ok := obj["data"]; ok {
		return nil, nil
	}
	if _, ok := obj["Results"]; ok {
		return nil, nil
	}
	return nil, errors.New("unexpected rise response shape")
}

func toReadings(recs []record, source string) []reconcile.Reading {
	out := make([]reconcile.Reading, 0, len(recs))
	for _, r := range recs {
		if rd, ok := r.reading(source); ok {
			out = append(out, rd)
		}
	}
	return out
}

// FetchDownload issues one bulk download per metric. The elevation download
// must succeed; the other metrics are optional.
func (c *Client) FetchDownload(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
	items := []struct {
		metric reconcile.Metric
		item   int
	}{
		{reconcile.Elevation, c.res.RISEItems.Elevation},
		{reconcile.Content, c.res.RISEItems.Storage},
		{reconcile.Inflow, c.res.RISEItems.Inflow},
		{reconcile.Outflow, c.res.RISEItems.Outflow},
	}

	out := reconcile.Series{}
	for _, it := range items {
		q := url.Values{
			"type":   {"json"},
			"itemId": {strconv.Itoa(it.item)},
			"after":  {start.Format(time.DateOnly)},
			"before": {end.Format(time.DateOnly)},
			"order":  {"ASC"},
		}
		body, err := c.download.Get(ctx, c.baseURL+"/download?"+q.Encode())
		if err == nil {
			var recs []record
			recs, err = decodeRecords(body)
			if err == nil {
				out[it.metric] = toReadings(recs, downloadSource)
			}
		}
		if err != nil {
			if it.metric == reconcile.Elevation || ctx.Err() != nil {
				return nil, fmt.Errorf("rise download item %d: %w", it.item, err)
			}
			c.logger.Warn("rise download failed", "item", it.item, "metric", string(it.metric), "error", err)
		}
	}
	c.recordOutcome(c.download, out)
	return out, nil
}

// FetchCatalog walks the paginated result catalog. Elevation is requested
// by parameter id first; when that yields nothing every parameter of the
// item is returned and the engine picks the best-covered one.
func (c *Client) FetchCatalog(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
	item := c.res.RISEItems.Elevation
	p := c.res.RISEParams

	elev, err := c.catalogPages(ctx, item, p.Elevation, start, end)
	if err != nil {
		return nil, err
	}
	if len(elev) == 0 {
		c.logger.Info("no readings for elevation parameter, scanning all parameters", "item", item, "param", p.Elevation)
		if elev, err = c.catalogPages(ctx, item, 0, start, end); err != nil {
			return nil, err
		}
	}

	out := reconcile.Series{reconcile.Elevation: elev}
	optional := []struct {
		metric reconcile.Metric
		item   int
		param  int
	}{
		{reconcile.Content, c.res.RISEItems.Storage, 0},
		{reconcile.Inflow, item, p.Inflow},
		{reconcile.Outflow, item, p.Outflow},
	}
	for _, o := range optional {
		rs, err := c.catalogPages(ctx, o.item, o.param, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("rise catalog fetch failed", "metric", string(o.metric), "error", err)
			continue
		}
		out[o.metric] = rs
	}
	c.recordOutcome(c.catalog, out)
	return out, nil
}

type catalogPage struct {
	Data []record `json:"data"`
	Meta struct {
		TotalItems   int `json:"totalItems"`
		ItemsPerPage int `json:"itemsPerPage"`
		CurrentPage  int `json:"currentPage"`
	} `json:"meta"`
	Links map[string]any `json:"links"`
}

func (c *Client) catalogPages(ctx context.Context, item, param int, start, end time.Time) ([]reconcile.Reading, error) {
	after := domain.DateOf(start).Format("2006-01-02T15:04:05Z")
	before := domain.DateOf(end).Add(24*time.Hour - time.Microsecond).Format("2006-01-02T15:04:05.999999Z")

	var out []reconcile.Reading
	for page := 1; page <= c.maxPages; page++ {
		q := url.Values{
			"catalogItemId":    {strconv.Itoa(item)},
			"dateTime[after]":  {after},
			"dateTime[before]": {before},
			"page":             {strconv.Itoa(page)},
		}
		if param != 0 {
			q.Set("parameterId", strconv.Itoa(param))
		}
		body, err := c.catalog.Get(ctx, c.baseURL+"?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("rise catalog item %d page %d: %w", item, page, err)
		}
		var resp catalogPage
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode rise catalog page %d: %w", page, err)
		}
		out = append(out, toReadings(resp.Data, catalogSource)...)

		perPage := resp.Meta.ItemsPerPage
		if perPage <= 0 {
			perPage = 25
		}
		totalPages := (resp.Meta.TotalItems + perPage - 1) / perPage
		current := resp.Meta.CurrentPage
		if current == 0 {
			current = page
		}
		if page == 1 {
			c.logger.Debug("rise catalog", "item", item, "param", param, "total_items", resp.Meta.TotalItems, "pages", totalPages)
		}
		if resp.Links["next"] == nil || current >= totalPages || len(resp.Data) == 0 {
			break
		}
		if page%10 == 0 {
			c.logger.Info("rise catalog progress", "item", item, "page", page, "pages", totalPages, "readings", len(out))
		}
	}
	return out, nil
}

// FetchLegacy queries by location and parameter id, one request per metric.
func (c *Client) FetchLegacy(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
	p := c.res.LegacyParam
	params := []struct {
		metric reconcile.Metric
		param  int
	}{
		{reconcile.Elevation, p.Elevation},
		{reconcile.Content, p.Content},
		{reconcile.Inflow, p.Inflow},
		{reconcile.Outflow, p.Outflow},
	}

	out := reconcile.Series{}
	for _, pp := range params {
		q := url.Values{
			"locationId":            {strconv.Itoa(c.res.RISELocID)},
			"parameterId":           {strconv.Itoa(pp.param)},
			"dateTime[after]":       {start.Format(time.DateOnly)},
			"dateTime[before]":      {end.Format(time.DateOnly)},
			"catalogItem.isModeled": {"false"},
		}
		body, err := c.legacy.Get(ctx, c.baseURL+"?"+q.Encode())
		if err == nil {
			var recs []record
			recs, err = decodeRecords(body)
			if err == nil {
				out[pp.metric] = toReadings(recs, legacySource)
				continue
			}
		}
		if pp.metric == reconcile.Elevation || ctx.Err() != nil {
			return nil, fmt.Errorf("rise legacy parameter %d: %w", pp.param, err)
		}
		c.logger.Warn("rise legacy fetch failed", "param", pp.param, "error", err)
	}
	c.recordOutcome(c.legacy, out)
	return out, nil
}

func (c *Client) recordOutcome(f *upstream.Fetcher, s reconcile.Series) {
	if s.Empty() {
		f.Record("empty")
		return
	}
	f.Record("success")
}
