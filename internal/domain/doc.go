// Package domain models glacier monitoring sites and the pure logic of the
// risk map: CSV parsing, risk-band filtering, summary statistics, marker
// styling, nearest-site selection and view bounds.
//
// # Data Source
//
// Site observations are published by the image-analysis backend as a
// comma-delimited file (glacier_data.csv) refreshed in place. The first line
// is a header; every other line is one site:
//
//	name,latitude,longitude,region,risk_score,temperature,alert_level,last_updated
//	Imja Tsho,27.898,86.925,Khumbu,8.4,-3.2,Critical,2024-05-01 06:00
//
// Column names are case-sensitive with a capitalized fallback
// ("Risk_Score" when "risk_score" is absent). An optional "id" column is
// carried through unchanged. Columns are matched by name, so reordered files
// parse the same; when a header repeats, the last column wins.
//
// # Parsing Limits
//
// Fields are split on every comma. Quoted fields that contain commas are not
// supported; quotes around a field are stripped. Numbers that fail to parse
// become NaN. A row whose latitude or longitude is NaN or infinite is
// skipped and reported as a [ParseError]; every other NaN is kept so the UI
// shows "NaN" instead of a misleading zero.
//
// # NaN Policy
//
// Averages in [Summarize] count NaN risk scores and temperatures as zero
// contribution while still counting the record. The same rule applies to the
// heat layer intensity. Popups and selection details format NaN verbatim, and
// JSON encodes it as null.
//
// # Risk Bands
//
//	High:   score >= 8
//	Medium: 5 <= score < 8
//	Low:    score < 5
//
// Marker colors use a finer scale: >=8 red, >=6 orange, >=4 yellow, else
// green. A NaN score matches no band and is drawn green.
package domain
