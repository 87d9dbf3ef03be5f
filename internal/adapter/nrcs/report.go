package nrcs

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
)

const reportSource = "snotel-report"

var (
	fieldSep    = regexp.MustCompile(`\s{2,}`)
	basinLine   = regexp.MustCompile(`^[A-Z\s/#]+$`)
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	knownBasins = []string{
		"UPPER COLORADO", "DUCHESNE", "YAMPA", "PRICE", "ESCALANTE",
		"DIRTY DEVIL", "GUNNISON", "ROARING FORK", "SOUTH EASTERN", "SAN JUAN",
	}
)

// ReportClient downloads the Colorado SNOTEL situation report.
type ReportClient struct {
	fetch  *upstream.Fetcher
	url    string
	logger *slog.Logger
}

// NewReportClient creates a report client.
func NewReportClient(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *ReportClient {
	return &ReportClient{
		fetch:  upstream.New(reportSource, timeout, metrics),
		url:    "https://www.water-data.com/colorado_snotel_rpt.txt",
		logger: logger,
	}
}

// FetchReport returns the station rows of the current report.
func (c *ReportClient) FetchReport(ctx context.Context) ([]domain.ReportSite, error) {
	body, err := c.fetch.Get(ctx, c.url)
	if err != nil {
		return nil, err
	}
	sites := ParseSnotelReport(bytes.NewReader(body))
	if len(sites) == 0 {
		c.fetch.Record("empty")
	} else {
		c.fetch.Record("success")
	}
	c.logger.Info("parsed snotel report", "sites", len(sites))
	return sites, nil
}

// ParseSnotelReport extracts station rows from the plaintext report. Fields
// are separated by two or more spaces: name, elevation, SWE current, median
// and percent, then precipitation current, median and percent. Station rows
// are indented and belong to the most recent all-caps basin heading.
func ParseSnotelReport(r io.Reader) []domain.ReportSite {
	var sites []domain.ReportSite
	basin := ""
	inData := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		raw := strings.TrimRight(sc.Text(), "\r")
		line := strings.TrimSpace(raw)

		if isBasinHeading(line) {
			basin = line
			inData = true
			continue
		}
		if strings.Contains(line, "Data Site Name") || strings.Contains(line, "---") || strings.Contains(line, "BASIN") {
			inData = true
			continue
		}
		if !inData || line == "" || strings.Contains(line, "Basin Index") {
			continue
		}
		if !strings.HasPrefix(raw, " ") || basin == "" {
			continue
		}

		site, ok := parseSiteLine(line)
		if !ok {
			continue
		}
		site.Basin = basin
		sites = append(sites, site)
	}
	return sites
}

func isBasinHeading(line string) bool {
	if len(line) <= 5 || !basinLine.MatchString(line) {
		return false
	}
	if strings.Contains(line, "BASIN") || strings.Contains(line, "RIVER") {
		return true
	}
	for _, b := range knownBasins {
		if strings.Contains(line, b) {
			return true
		}
	}
	return false
}

func parseSiteLine(line string) (domain.ReportSite, bool) {
	parts := fieldSep.Split(line, -1)
	if len(parts) < 8 {
		return domain.ReportSite{}, false
	}
	name := strings.TrimSpace(parts[0])
	if name == "" || digitsOnly.MatchString(name) {
		return domain.ReportSite{}, false
	}
	elev, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || elev < 100 || elev > 15000 {
		return domain.ReportSite{}, false
	}
	// Long all-caps names are stray headings, not stations.
	if len(name) > 15 && strings.ToUpper(name) == name && strings.ToLower(name) != name {
		return domain.ReportSite{}, false
	}

	return domain.ReportSite{
		Name:          name,
		Elevation:     elev,
		SWECurrent:    domain.ParseNumber(parts[2]),
		SWEMedian:     domain.ParseNumber(parts[3]),
		SWEPercent:    domain.ParseNumber(parts[4]),
		PrecipCurrent: domain.ParseNumber(parts[5]),
		PrecipMedian:  domain.ParseNumber(parts[6]),
		PrecipPercent: domain.ParseNumber(parts[7]),
	}, true
}
