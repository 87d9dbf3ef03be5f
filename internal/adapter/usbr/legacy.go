// Package usbr reads Lake Powell daily data published by the Bureau of
// Reclamation: the 40-day HTML report, the hydrodata dashboard series and
// historical CSV exports.
package usbr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	"golang.org/x/net/html"
)

const (
	legacySource = "usbr-legacy"
	// The report only covers the 40 days ending at as_of.
	legacyWindowDays = 40
)

// ErrNoTable is returned when a legacy page has no recognisable data table.
var ErrNoTable = errors.New("no data table in usbr page")

var rowDateLayouts = []string{"02-Jan-2006", "2-Jan-2006", "02-January-2006", "2-January-2006"}

// LegacyOptions tunes the per-date requests of the legacy report.
type LegacyOptions struct {
	Timeout   time.Duration
	Delay     time.Duration
	Attempts  int
	RetryBase time.Duration
}

// LegacyClient scrapes rsv40Day.html one date at a time.
type LegacyClient struct {
	fetch     *upstream.Fetcher
	baseURL   string
	siteID    string
	delay     time.Duration
	attempts  int
	retryBase time.Duration
	logger    *slog.Logger
}

// NewLegacyClient creates a client for the reservoir's USBR site.
func NewLegacyClient(res domain.Reservoir, opts LegacyOptions, logger *slog.Logger, metrics *observability.Metrics) *LegacyClient {
	return &LegacyClient{
		fetch:     upstream.New(legacySource, opts.Timeout, metrics),
		baseURL:   "https://www.usbr.gov/rsvrWater/rsv40Day.html",
		siteID:    res.USBRSiteID,
		delay:     opts.Delay,
		attempts:  max(1, opts.Attempts),
		retryBase: opts.RetryBase,
		logger:    logger,
	}
}

// Strategy exposes the client to the reconciliation chain.
func (c *LegacyClient) Strategy() reconcile.Strategy {
	return reconcile.Strategy{Name: legacySource, Fetch: c.FetchRange}
}

// FetchDate returns the row for d, or nil when the report does not list it or
// the page is not found. Transient failures are retried with a doubling wait.
func (c *LegacyClient) FetchDate(ctx context.Context, d time.Time) (*domain.WaterRecord, error) {
	d = domain.DateOf(d)
	if d.After(domain.Today()) {
		return nil, fmt.Errorf("cannot fetch future date %s", d.Format(time.DateOnly))
	}

	q := url.Values{"siteid": {c.siteID}, "as_of": {d.Format(time.DateOnly)}}
	u := c.baseURL + "?" + q.Encode()

	var body []byte
	var err error
	wait := c.retryBase
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err = c.fetch.Get(ctx, u)
		if err == nil {
			break
		}
		if upstream.IsNotFound(err) {
			c.fetch.Record("empty")
			return nil, nil
		}
		c.logger.Warn("usbr request failed", "date", d.Format(time.DateOnly), "attempt", attempt, "error", err)
		if attempt == c.attempts || !upstream.IsTransient(err) {
			return nil, err
		}
		if serr := upstream.Sleep(ctx, wait); serr != nil {
			return nil, serr
		}
		wait *= 2
	}

	rec, err := ParseLegacyPage(bytes.NewReader(body), d)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		c.fetch.Record("empty")
		return nil, nil
	}
	c.fetch.Record("success")
	return rec, nil
}

// FetchRange fetches each date in [start, end] with the courtesy delay
// between requests. Dates older than the report window are skipped, and a
// failed date is logged and left out.
func (c *LegacyClient) FetchRange(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
	today := domain.Today()
	if domain.DateOf(end).After(today) {
		return nil, fmt.Errorf("cannot fetch future date %s", end.Format(time.DateOnly))
	}
	oldest := today.AddDate(0, 0, -legacyWindowDays)

	out := reconcile.Series{}
	skipped, requested := 0, 0
	for _, d := range domain.DateRange(start, end) {
		if d.Before(oldest) {
			skipped++
			continue
		}
		if requested > 0 {
			if err := upstream.Sleep(ctx, c.delay); err != nil {
				return out, err
			}
		}
		requested++
		rec, err := c.FetchDate(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			c.logger.Warn("usbr date unavailable", "date", d.Format(time.DateOnly), "error", err)
			continue
		}
		if rec == nil {
			c.logger.Debug("usbr report does not list date", "date", d.Format(time.DateOnly))
			continue
		}
		ts := rec.Date
		out.Add(reconcile.Elevation, reconcile.Reading{Timestamp: ts, Value: rec.Elevation, Source: legacySource})
		out.Add(reconcile.Content, reconcile.Reading{Timestamp: ts, Value: float64(rec.Content), Source: legacySource})
		out.Add(reconcile.Inflow, reconcile.Reading{Timestamp: ts, Value: float64(rec.Inflow), Source: legacySource})
		out.Add(reconcile.Outflow, reconcile.Reading{Timestamp: ts, Value: float64(rec.Outflow), Source: legacySource})
	}
	if skipped > 0 {
		c.logger.Debug("skipped dates outside the usbr report window", "count", skipped)
	}
	return out, nil
}

// ParseLegacyPage finds target's row in a 40-day report page. Columns are
// date, elevation, storage, inflow, total release. It returns nil, nil when
// the table has no usable row for target.
func ParseLegacyPage(r io.Reader, target time.Time) (*domain.WaterRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse usbr html: %w", err)
	}

	table := findNode(doc, func(n *html.Node) bool {
		return n.Data == "table" && attr(n, "id") == "form1:datatable"
	})
	if table == nil {
		table = findNode(doc, func(n *html.Node) bool {
			if n.Data != "table" {
				return false
			}
			body := findNode(n, func(c *html.Node) bool { return c.Data == "tbody" })
			return body != nil && findNode(body, func(c *html.Node) bool { return c.Data == "tr" }) != nil
		})
	}
	if table == nil {
		return nil, ErrNoTable
	}
	tbody := findNode(table, func(n *html.Node) bool { return n.Data == "tbody" })
	if tbody == nil {
		return nil, ErrNoTable
	}

	target = domain.DateOf(target)
	for _, tr := range children(tbody, "tr") {
		cells := children(tr, "td")
		if len(cells) < 5 {
			continue
		}
		d, ok := parseRowDate(text(cells[0]))
		if !ok || !d.Equal(target) {
			continue
		}
		elev := domain.ParseNumber(text(cells[1]))
		content := domain.ParseInt(text(cells[2]))
		inflow := domain.ParseInt(text(cells[3]))
		outflow := domain.ParseInt(text(cells[4]))
		if elev == nil || content == nil || inflow == nil || outflow == nil {
			continue
		}
		return &domain.WaterRecord{
			Date:      d,
			Elevation: *elev,
			Content:   *content,
			Inflow:    *inflow,
			Outflow:   *outflow,
		}, nil
	}
	return nil, nil
}

func parseRowDate(s string) (time.Time, bool) {
	for _, layout := range rowDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func children(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
