package nrcs

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
)

const (
	awdbSource    = "nrcs-awdb"
	awdbNamespace = "http://www.wcc.nrcs.usda.gov/ns/awdbWebService"
	soapNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
)

// Element codes requested for each station, in request order.
const (
	ElementSWE       = "WTEQ"
	ElementPrecip    = "PREC"
	ElementSnowDepth = "SNWD"
	ElementTempMax   = "TMAX"
	ElementTempMin   = "TMIN"
	ElementTempAvg   = "TAVG"
)

var historyElements = []string{ElementSWE, ElementPrecip, ElementSnowDepth, ElementTempMax, ElementTempMin, ElementTempAvg}

// StationMetadata is the subset of AWDB station metadata used for matching.
type StationMetadata struct {
	Triplet   string
	Name      string
	Elevation *float64
	Latitude  *float64
	Longitude *float64
}

// DailyValue is one day of one element. Value is nil when AWDB reports no
// value for the day.
type DailyValue struct {
	Date  time.Time
	Value *float64
}

// AWDBClient speaks SOAP 1.1 to the AWDB web service.
type AWDBClient struct {
	fetch    *upstream.Fetcher
	endpoint string
	logger   *slog.Logger
}

// NewAWDBClient creates an AWDB client.
func NewAWDBClient(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *AWDBClient {
	return &AWDBClient{
		fetch:    upstream.New(awdbSource, timeout, metrics),
		endpoint: "https://wcc.sc.egov.usda.gov/awdbWebService/services",
		logger:   logger,
	}
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	Soap    string   `xml:"xmlns:soapenv,attr"`
	NS      string   `xml:"xmlns:q0,attr"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Payload any
}

type getStationMetadataRequest struct {
	XMLName        xml.Name `xml:"q0:getStationMetadata"`
	StationTriplet string   `xml:"stationTriplet"`
}

type getDataRequest struct {
	XMLName                xml.Name `xml:"q0:getData"`
	StationTriplets        []string `xml:"stationTriplets"`
	ElementCd              string   `xml:"elementCd"`
	Ordinal                int      `xml:"ordinal"`
	Duration               string   `xml:"duration"`
	GetFlags               bool     `xml:"getFlags"`
	BeginDate              string   `xml:"beginDate"`
	EndDate                string   `xml:"endDate"`
	AlwaysReturnDailyFeb29 bool     `xml:"alwaysReturnDailyFeb29"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *soapFault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

type metadataResponse struct {
	Body struct {
		Fault  *soapFault `xml:"Fault"`
		Result struct {
			Return struct {
				StationTriplet string   `xml:"stationTriplet"`
				Name           string   `xml:"name"`
				StationName    string   `xml:"stationName"`
				Elevation      *float64 `xml:"elevation"`
				Latitude       *float64 `xml:"latitude"`
				Longitude      *float64 `xml:"longitude"`
			} `xml:"return"`
		} `xml:"getStationMetadataResponse"`
	} `xml:"Body"`
}

type dataResponse struct {
	Body struct {
		Fault  *soapFault `xml:"Fault"`
		Result struct {
			Return []struct {
				StationTriplet string `xml:"stationTriplet"`
				BeginDate      string `xml:"beginDate"`
				EndDate        string `xml:"endDate"`
				Values         []struct {
					Nil  string `xml:"http://www.w3.org/2001/XMLSchema-instance nil,attr"`
					Text string `xml:",chardata"`
				} `xml:"values"`
			} `xml:"return"`
		} `xml:"getDataResponse"`
	} `xml:"Body"`
}

// call posts one SOAP request. Faults are returned as errors even when the
// service answers them with a 500.
func (c *AWDBClient) call(ctx context.Context, payload any, out any) error {
	env := soapEnvelope{Soap: soapNamespace, NS: awdbNamespace, Body: soapBody{Payload: payload}}
	reqBody, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal soap request: %w", err)
	}
	reqBody = append([]byte(xml.Header), reqBody...)

	body, err := c.fetch.Post(ctx, c.endpoint, "text/xml; charset=utf-8", http.Header{"SOAPAction": {`""`}}, reqBody)
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) && strings.Contains(se.Body, "faultstring") {
			var fault struct {
				Body struct {
					Fault *soapFault `xml:"Fault"`
				} `xml:"Body"`
			}
			if xml.Unmarshal([]byte(se.Body), &fault) == nil && fault.Body.Fault != nil {
				return fault.Body.Fault
			}
		}
		return err
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode soap response: %w", err)
	}
	return nil
}

// StationMetadata looks up one station triplet (STATE:STATION:ELEMENT).
func (c *AWDBClient) StationMetadata(ctx context.Context, triplet string) (*StationMetadata, error) {
	var resp metadataResponse
	if err := c.call(ctx, getStationMetadataRequest{StationTriplet: triplet}, &resp); err != nil {
		return nil, err
	}
	if resp.Body.Fault != nil {
		return nil, resp.Body.Fault
	}
	r := resp.Body.Result.Return
	name := r.Name
	if name == "" {
		name = r.StationName
	}
	if name == "" && r.StationTriplet == "" {
		return nil, fmt.Errorf("no metadata for %s", triplet)
	}
	return &StationMetadata{
		Triplet:   r.StationTriplet,
		Name:      name,
		Elevation: r.Elevation,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

// GetData returns daily values of one element for the primary sensor.
// Values are returned in sequence from the response's begin date.
func (c *AWDBClient) GetData(ctx context.Context, triplet, element string, start, end time.Time) ([]DailyValue, error) {
	req := getDataRequest{
		StationTriplets: []string{triplet},
		ElementCd:       element,
		Ordinal:         1,
		Duration:        "DAILY",
		BeginDate:       start.Format(time.DateOnly),
		EndDate:         end.Format(time.DateOnly),
	}
	var resp dataResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.Body.Fault != nil {
		return nil, resp.Body.Fault
	}

	var out []DailyValue
	for _, r := range resp.Body.Result.Return {
		begin, ok := domain.ParseDate(r.BeginDate)
		if !ok {
			begin = domain.DateOf(start)
		}
		for i, v := range r.Values {
			dv := DailyValue{Date: begin.AddDate(0, 0, i)}
			if v.Nil != "true" {
				dv.Value = domain.ParseNumber(v.Text)
			}
			out = append(out, dv)
		}
	}
	return out, nil
}

// FetchHistory returns one measurement per date that has at least one
// element. An element that fails is logged and skipped; the call fails only
// when every element fails.
func (c *AWDBClient) FetchHistory(ctx context.Context, siteID string, start, end time.Time) ([]domain.SnotelMeasurement, error) {
	byDate := map[time.Time]*domain.SnotelMeasurement{}
	var errs []error
	for _, el := range historyElements {
		values, err := c.GetData(ctx, elementTriplet(siteID, el), el, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("awdb element fetch failed", "site_id", siteID, "element", el, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", el, err))
			continue
		}
		for _, v := range values {
			if v.Value == nil {
				continue
			}
			m, ok := byDate[v.Date]
			if !ok {
				m = &domain.SnotelMeasurement{SiteID: siteID, Date: v.Date}
				byDate[v.Date] = m
			}
			setElement(m, el, v.Value)
		}
	}
	if len(errs) == len(historyElements) {
		c.fetch.Record("error")
		return nil, errors.Join(errs...)
	}

	out := make([]domain.SnotelMeasurement, 0, len(byDate))
	for _, m := range byDate {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) == 0 {
		c.fetch.Record("empty")
	} else {
		c.fetch.Record("success")
	}
	return out, nil
}

// elementTriplet turns "ST:ID" or "ST:ID:ELEM" into "ST:ID:element".
func elementTriplet(siteID, element string) string {
	parts := strings.Split(siteID, ":")
	if len(parts) >= 3 {
		return parts[0] + ":" + parts[1] + ":" + element
	}
	return siteID + ":" + element
}

func setElement(m *domain.SnotelMeasurement, element string, v *float64) {
	switch element {
	case ElementSWE:
		m.SWE = v
	case ElementPrecip:
		m.Precipitation = v
	case ElementSnowDepth:
		m.SnowDepth = v
	case ElementTempMax:
		m.TempMax = v
	case ElementTempMin:
		m.TempMin = v
	case ElementTempAvg:
		m.TempAvg = v
	}
}
