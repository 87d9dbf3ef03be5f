// Package domain models daily reservoir hydrology and snowpack data for
// Lake Powell (Glen Canyon Dam, USBR site 919).
//
// # Data Sources
//
// Daily reservoir conditions are published by the Bureau of Reclamation in
// several overlapping forms: a 40-day rolling HTML table, the RISE JSON API
// (bulk download and paginated catalog endpoints), and the Upper Colorado
// hydrodata dashboard CSV/JSON files. USGS publishes the same gauge under site
// 09379900. Snowpack climatology comes from the NRCS basin-plots service and
// per-station SNOTEL data from the NRCS AWDB SOAP service.
//
// # Units
//
//	elevation   feet above sea level (NGVD29)
//	content     acre-feet of total storage above the dead pool
//	inflow      cubic feet per second (daily mean, unregulated inflow)
//	outflow     cubic feet per second (daily mean, total release)
//	swe         inches of snow water equivalent
//
// One cfs sustained for one day is 1.983 acre-feet ([CFSDayToAcreFeet]).
//
// # Missing Values
//
// Upstream providers mark missing data with "", "null", "M", "-M" or "*".
// [ParseNumber] maps all of them to nil. Thousands separators are stripped,
// so "6,508,998" parses as 6508998.
//
// # Water Year
//
// A water year runs from October 1 through September 30 and is named after
// the calendar year in which it ends: water year 2024 is 2023-10-01 through
// 2024-09-30. Basin-plot climatology is keyed by "MM-DD" within the water year;
// [WaterYearDate] turns such a key back into a calendar date.
//
// # Storage Reference
//
// Content is total storage measured from the dead pool at 3370 ft. Some RISE
// catalog items report bank storage, a subset that is 1,796,204 af short of
// total storage once the pool is above 3520 ft. The reconcile package applies
// the correction when it sees readings from that item.
package domain
