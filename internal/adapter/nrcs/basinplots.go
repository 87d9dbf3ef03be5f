// Package nrcs reads snowpack data published by the USDA Natural Resources
// Conservation Service: the Upper Colorado basin-plot climatology, the
// SNOTEL situation report and per-station history from the AWDB web service.
package nrcs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
)

const (
	basinPlotsSource = "nrcs-basin-plots"
	basinPlotsURL    = "https://nwcc-apps.sc.egov.usda.gov/awdb/basin-plots/POR/WTEQ/assocHUC2/14_Upper_Colorado_Region"

	// FirstBasinYear is the first year column of the basin plot table.
	FirstBasinYear = 1986
)

// BasinPlotsClient downloads the basin-plot table, JSON first with the CSV
// export as fallback.
type BasinPlotsClient struct {
	fetch   *upstream.Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewBasinPlotsClient creates a client for the Upper Colorado region plot.
func NewBasinPlotsClient(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *BasinPlotsClient {
	return &BasinPlotsClient{
		fetch:   upstream.New(basinPlotsSource, timeout, metrics),
		baseURL: basinPlotsURL,
		logger:  logger,
	}
}

// FetchBasinPlots returns one record per (position, year) with the position's
// statistics attached.
func (c *BasinPlotsClient) FetchBasinPlots(ctx context.Context) ([]domain.SnowpackRecord, error) {
	rows, jsonErr := c.fetchJSON(ctx)
	if jsonErr != nil || len(rows) == 0 {
		if jsonErr != nil {
			c.logger.Warn("basin plots json unavailable, trying csv", "error", jsonErr)
		}
		var csvErr error
		rows, csvErr = c.fetchCSV(ctx)
		if csvErr != nil {
			c.fetch.Record("error")
			return nil, errors.Join(jsonErr, csvErr)
		}
	}
	recs := ParseBasinPlots(rows, domain.Today().Year(), c.logger)
	if len(recs) == 0 {
		c.fetch.Record("empty")
	} else {
		c.fetch.Record("success")
	}
	return recs, nil
}

func (c *BasinPlotsClient) fetchJSON(ctx context.Context) ([]map[string]any, error) {
	body, err := c.fetch.Get(ctx, c.baseURL+".json?hucFilter=14")
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode basin plots json: %w", err)
	}
	return rows, nil
}

func (c *BasinPlotsClient) fetchCSV(ctx context.Context) ([]map[string]any, error) {
	body, err := c.fetch.Get(ctx, c.baseURL+".csv?hucFilter=14")
	if err != nil {
		return nil, err
	}
	return readCSVRows(bytes.NewReader(body))
}

func readCSVRows(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read basin plots csv header: %w", err)
	}
	var rows []map[string]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read basin plots csv: %w", err)
		}
		row := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[strings.TrimSpace(h)] = rec[i]
			}
		}
		rows = append(rows, row)
	}
}

// Statistic columns shared by every year on a row.
const (
	colP10        = "10%"
	colP30        = "30%"
	colP70        = "70%"
	colP90        = "90%"
	colMin        = "Min"
	colMedian9120 = "Median ('91-'20)"
	colMedianPOR  = "Median (POR)"
	colMax        = "Max"
	colMedianPeak = "Median Peak SWE"
)

// ParseBasinPlots expands table rows keyed by "date" (MM-DD) into records for
// every year column from FirstBasinYear through currentYear+1. Duplicate
// (water-year date, year) keys keep the first record unless a later one has
// SWE where the kept one has none.
func ParseBasinPlots(rows []map[string]any, currentYear int, logger *slog.Logger) []domain.SnowpackRecord {
	type key struct {
		date time.Time
		year int
	}
	index := map[key]int{}
	var out []domain.SnowpackRecord

	for _, row := range rows {
		mmdd, _ := row["date"].(string)
		mmdd = strings.TrimSpace(mmdd)
		if mmdd == "" {
			continue
		}
		wyDate, err := domain.WaterYearDate(mmdd, currentYear)
		if err != nil {
			logger.Warn("skipping basin plot row", "date", mmdd, "error", err)
			continue
		}

		base := domain.SnowpackRecord{
			DateStr:       mmdd,
			WaterYearDate: wyDate,
			Percentile10:  domain.ParseNumber(row[colP10]),
			Percentile30:  domain.ParseNumber(row[colP30]),
			Percentile70:  domain.ParseNumber(row[colP70]),
			Percentile90:  domain.ParseNumber(row[colP90]),
			Min:           domain.ParseNumber(row[colMin]),
			Median9120:    domain.ParseNumber(row[colMedian9120]),
			MedianPOR:     domain.ParseNumber(row[colMedianPOR]),
			Max:           domain.ParseNumber(row[colMax]),
			MedianPeakSWE: domain.ParseNumber(row[colMedianPeak]),
		}
		for year := FirstBasinYear; year <= currentYear+1; year++ {
			rec := base
			rec.Year = year
			rec.SWE = domain.ParseNumber(row[strconv.Itoa(year)])

			k := key{wyDate, year}
			if i, seen := index[k]; seen {
				if rec.SWE != nil && out[i].SWE == nil {
					out[i] = rec
				}
				continue
			}
			index[k] = len(out)
			out = append(out, rec)
		}
	}
	logger.Debug("parsed basin plots", "rows", len(rows), "records", len(out))
	return out
}
