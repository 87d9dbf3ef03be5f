package usbr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

var csvDateLayouts = []string{"2006-01-02", "01/02/2006", "2006/01/02", "02-Jan-2006", "02-January-2006"}

// Header aliases, compared case-insensitively.
var csvColumns = map[string][]string{
	"date":      {"date"},
	"elevation": {"elevation"},
	"content":   {"storage", "content"},
	"inflow":    {"inflow"},
	"outflow":   {"outflow", "release", "total release"},
}

// ParseHistoricalCSV reads a manually downloaded USBR export. Rows without a
// parsable date or elevation are dropped; missing storage and flows are 0.
func ParseHistoricalCSV(r io.Reader) ([]domain.WaterRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := map[string]int{}
	for name, aliases := range csvColumns {
		idx[name] = -1
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
			for _, a := range aliases {
				if h == a {
					idx[name] = i
				}
			}
			if idx[name] >= 0 {
				break
			}
		}
	}
	if idx["date"] < 0 || idx["elevation"] < 0 {
		return nil, errors.New("csv needs Date and Elevation columns")
	}

	cell := func(row []string, name string) string {
		i := idx[name]
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}
	intCell := func(row []string, name string) int64 {
		if v := domain.ParseInt(cell(row, name)); v != nil {
			return *v
		}
		return 0
	}

	var out []domain.WaterRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read csv: %w", err)
		}
		d, ok := parseCSVDate(cell(row, "date"))
		if !ok {
			continue
		}
		elev := domain.ParseNumber(cell(row, "elevation"))
		if elev == nil {
			continue
		}
		out = append(out, domain.WaterRecord{
			Date:      d,
			Elevation: *elev,
			Content:   intCell(row, "content"),
			Inflow:    intCell(row, "inflow"),
			Outflow:   intCell(row, "outflow"),
		})
	}
	return out, nil
}

func parseCSVDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
