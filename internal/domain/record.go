package domain

import (
	"strings"
	"time"
)

// WaterRecord is one reconciled day of reservoir conditions.
type WaterRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Date      time.Time `gorm:"type:date;uniqueIndex;not null" json:"date"`
	Elevation float64   `gorm:"type:numeric(10,2);not null" json:"elevation"`
	Change    *float64  `gorm:"type:numeric(10,2)" json:"change"`
	Content   int64     `gorm:"not null;default:0" json:"content"`
	Inflow    int64     `gorm:"not null;default:0" json:"inflow"`
	Outflow   int64     `gorm:"not null;default:0" json:"outflow"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (WaterRecord) TableName() string { return "water_measurements" }

// WeatherRecord holds daily air and water temperatures near Page, AZ.
type WeatherRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Date      time.Time `gorm:"type:date;uniqueIndex;not null" json:"date"`
	HighTemp  *float64  `json:"high_temp"`
	LowTemp   *float64  `json:"low_temp"`
	WaterTemp *float64  `json:"water_temp"`
	CreatedAt time.Time `json:"-"`
}

func (WeatherRecord) TableName() string { return "weather_data" }

// SnowpackRecord is one basin-plot climatology row: the SWE observed for one
// water year at one position in the water year, plus the reference statistics
// for that position (identical across years).
type SnowpackRecord struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	DateStr       string    `gorm:"size:5;not null" json:"date_str"`
	WaterYearDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_basin_wy_date_year" json:"water_year_date"`
	Year          int       `gorm:"not null;uniqueIndex:idx_basin_wy_date_year" json:"year"`
	SWE           *float64  `gorm:"column:swe_value" json:"swe_value"`
	Percentile10  *float64  `gorm:"column:percentile_10" json:"percentile_10"`
	Percentile30  *float64  `gorm:"column:percentile_30" json:"percentile_30"`
	Percentile70  *float64  `gorm:"column:percentile_70" json:"percentile_70"`
	Percentile90  *float64  `gorm:"column:percentile_90" json:"percentile_90"`
	Min           *float64  `gorm:"column:min_value" json:"min_value"`
	Median9120    *float64  `gorm:"column:median_91_20" json:"median_91_20"`
	MedianPOR     *float64  `gorm:"column:median_por" json:"median_por"`
	Max           *float64  `gorm:"column:max_value" json:"max_value"`
	MedianPeakSWE *float64  `gorm:"column:median_peak_swe" json:"median_peak_swe"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

func (SnowpackRecord) TableName() string { return "basin_plots_data" }

// SnotelSite is a snow telemetry station. SiteID is "ST:ID" when resolved
// against AWDB, or an "UNKNOWN:" placeholder otherwise.
type SnotelSite struct {
	SiteID    string    `gorm:"primaryKey;size:64" json:"site_id"`
	Name      string    `gorm:"not null" json:"name"`
	Elevation *int      `json:"elevation"`
	Basin     string    `json:"basin"`
	State     string    `gorm:"size:2" json:"state"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (SnotelSite) TableName() string { return "snotel_sites" }

// Resolved reports whether the site id came from AWDB rather than a placeholder.
func (s SnotelSite) Resolved() bool {
	return !strings.HasPrefix(s.SiteID, UnknownSitePrefix)
}

// PlaceholderSiteID builds the synthetic id kept for sites AWDB could not
// resolve: UNKNOWN:<NAME_WITH_UNDERSCORES, 20 chars>:<basin, 10 chars>.
func PlaceholderSiteID(name, basin string) string {
	if basin == "" {
		basin = "UNKNOWN"
	}
	token := strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
	return UnknownSitePrefix + truncate(token, 20) + ":" + truncate(basin, 10)
}

// StateOf returns the state code of a resolved "ST:ID" site id.
func StateOf(siteID string) string {
	if strings.HasPrefix(siteID, UnknownSitePrefix) {
		return ""
	}
	state, _, ok := strings.Cut(siteID, ":")
	if !ok || len(state) != 2 {
		return ""
	}
	return state
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// ReportSite is one station row of the SNOTEL situation report. It is not
// persisted directly; the importer turns it into a SnotelSite and, for
// unresolved sites, a same-day SnotelMeasurement.
type ReportSite struct {
	Name          string
	Elevation     int
	Basin         string
	SWECurrent    *float64
	SWEMedian     *float64
	SWEPercent    *float64
	PrecipCurrent *float64
	PrecipMedian  *float64
	PrecipPercent *float64
}

// SnotelMeasurement is one day of station data. Each element is independently
// nullable because AWDB does not report every element for every station.
type SnotelMeasurement struct {
	SiteID        string    `gorm:"primaryKey;size:64" json:"site_id"`
	Date          time.Time `gorm:"primaryKey;type:date" json:"date"`
	SWE           *float64  `gorm:"column:snow_water_equivalent" json:"snow_water_equivalent"`
	SnowDepth     *float64  `json:"snow_depth"`
	Precipitation *float64  `json:"precipitation"`
	TempMax       *float64  `gorm:"column:temperature_max" json:"temperature_max"`
	TempMin       *float64  `gorm:"column:temperature_min" json:"temperature_min"`
	TempAvg       *float64  `gorm:"column:temperature_avg" json:"temperature_avg"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

func (SnotelMeasurement) TableName() string { return "snotel_measurements" }

// CapacityEntry is one foot of the elevation-storage curve.
type CapacityEntry struct {
	Elevation          int      `gorm:"primaryKey;autoIncrement:false" json:"elevation"`
	StorageAtElevation int64    `gorm:"not null" json:"storage_at_elevation"`
	StoragePerFoot     *int64   `json:"storage_per_foot"`
	PercentOfFull      float64  `gorm:"type:numeric(6,2)" json:"percent_of_full"`
	PercentPerFoot     *float64 `gorm:"type:numeric(7,3)" json:"percent_per_foot"`
}

func (CapacityEntry) TableName() string { return "elevation_storage_capacity" }

// WaterYearAnalysis summarises one water year's runoff cycle.
type WaterYearAnalysis struct {
	WaterYear int `gorm:"primaryKey;autoIncrement:false" json:"water_year"`

	PreRunoffLowDate      *time.Time `gorm:"type:date" json:"pre_runoff_low_date"`
	PreRunoffLowElevation *float64   `json:"pre_runoff_low_elevation"`
	RunoffStartDate       *time.Time `gorm:"type:date" json:"runoff_start_date"`
	RunoffStartElevation  *float64   `json:"runoff_start_elevation"`
	PeakDate              *time.Time `gorm:"type:date" json:"peak_date"`
	PeakElevation         *float64   `json:"peak_elevation"`
	EndOfYearElevation    *float64   `json:"end_of_year_elevation"`
	RunoffGainFt          *float64   `json:"runoff_gain_ft"`
	HadRunoffRise         bool       `json:"had_runoff_rise"`
	DaysOfRise            int        `json:"days_of_rise"`

	TotalInflowAF   int64 `gorm:"column:total_inflow_af" json:"total_inflow_af"`
	TotalOutflowAF  int64 `gorm:"column:total_outflow_af" json:"total_outflow_af"`
	NetFlowAF       int64 `gorm:"column:net_flow_af" json:"net_flow_af"`
	RunoffInflowAF  int64 `gorm:"column:runoff_inflow_af" json:"runoff_inflow_af"`
	RunoffOutflowAF int64 `gorm:"column:runoff_outflow_af" json:"runoff_outflow_af"`
	RunoffNetAF     int64 `gorm:"column:runoff_net_af" json:"runoff_net_af"`

	PeakSWE                *float64   `gorm:"column:peak_swe" json:"peak_swe"`
	PeakSWEDate            *time.Time `gorm:"column:peak_swe_date;type:date" json:"peak_swe_date"`
	PeakSWEPercentOfMedian *float64   `gorm:"column:peak_swe_percent_of_median" json:"peak_swe_percent_of_median"`
	April1SWE              *float64   `gorm:"column:april_1_swe" json:"april_1_swe"`
	April1PercentOfMedian  *float64   `gorm:"column:april_1_percent_of_median" json:"april_1_percent_of_median"`
	InflowPerInchSWE       *int64     `gorm:"column:inflow_per_inch_swe" json:"inflow_per_inch_swe"`
	FtGainedPerInchSWE     *float64   `gorm:"column:ft_gained_per_inch_swe" json:"ft_gained_per_inch_swe"`

	UpdatedAt time.Time `json:"-"`
}

func (WaterYearAnalysis) TableName() string { return "water_year_analysis" }

// Ramp is a boat launch with the lake elevations at which it stays usable.
type Ramp struct {
	ID                 uint    `gorm:"primaryKey" json:"id"`
	Name               string  `gorm:"uniqueIndex;not null" json:"name"`
	MinSafeElevation   float64 `gorm:"type:numeric(10,2);not null" json:"min_safe_elevation"`
	MinUsableElevation float64 `gorm:"type:numeric(10,2);not null" json:"min_usable_elevation"`
	Location           string  `json:"location"`
}

func (Ramp) TableName() string { return "ramps" }
