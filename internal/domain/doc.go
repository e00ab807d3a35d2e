// Package domain models Ukrainian urban air-quality data and the
// coverage rules that decide which of it is trustworthy.
//
// # Data Source
//
// Hourly readings originate from the SaveEcoBot civic monitoring network:
// one row per (city, hour) carrying a PM2.5 concentration in µg/m³ and a
// US-EPA-style AQI value, timestamped in UTC. City identity is an integer
// station grouping; display names, region names, and the KOATUU/KATOTTG
// administrative codes come from a separate static metadata table and are
// joined in during aggregation. Either sensor field may be absent for an
// hour; absence is recorded as null, never as zero.
//
// # Calendar Conventions
//
// All date-level semantics use the local civil calendar (Europe/Kyiv by
// default), never UTC:
//
//	date_local   local midnight of the reading's calendar date
//	hour_local   0-23 in local time
//	weekday      Monday=0 .. Sunday=6
//	season       winter=Dec/Jan/Feb, spring=Mar-May,
//	             summer=Jun-Aug, autumn=Sep-Nov
//	period       pre_war before the wartime start date,
//	             wartime on/after it (inclusive)
//
// The wartime boundary (2022-02-24 by default) is a local midnight, so a
// local date is entirely pre-war or entirely wartime and hourly records
// always agree with the daily rows derived from them.
//
// # Validity
//
// A PM2.5 value is valid when null or within [0, 1000] µg/m³; an AQI value
// when null or within [0, 500]. A record is valid when both fields are.
// Invalid records stay in the hourly table for audit but are excluded from
// every aggregate. An exceedance is a non-null PM2.5 reading strictly
// above the guideline threshold (15.0 µg/m³ by default, the WHO 2021
// 24-hour guideline).
//
// # Coverage and Eligibility
//
// Station uptime varies enormously across the network, and comparing a
// city's wartime air against its pre-war air is only meaningful when both
// sides rest on dense data. Coverage is measured per city-year: a day
// counts as covered when it has at least 18 valid hourly records, and a
// year is a good year when at least 70% of its observed days are covered.
// A city is eligible when it has at least 4 good years, of which at least
// 2 fall before the wartime split and at least 2 on or after it. Only
// eligible (city, year) pairs survive into the published tables.
//
// The same decision must be reachable from two directions: the pipeline
// gates on raw daily aggregates, while downstream consumers recompute
// eligibility from the year-level rows of the distribution table they
// already hold. Both entry points normalize to the CoverageRow shape and
// share one decision function, so they cannot drift apart.
//
// # Aggregation Statistics
//
// Quantiles interpolate linearly between order statistics. Statistics skip
// missing (NaN) samples and return NaN when nothing remains, which the
// output adapters store as null. The city distribution p90/p10 spread is
// intentionally computed over daily medians rather than daily means: each
// day weighs the same regardless of how many hourly samples it had.
package domain
