package domain

import "time"

// Calendar derives local calendar fields and the pre-war/wartime split.
// All date-level semantics in the pipeline (daily grouping, year
// extraction, period tagging) use the local civil calendar, never UTC.
type Calendar struct {
	loc          *time.Location
	wartimeLocal time.Time // local midnight of the wartime start date
}

// NewCalendar builds a Calendar for the given timezone and wartime start
// date. The start date is inclusive: the first local instant of that date
// already counts as wartime.
func NewCalendar(loc *time.Location, wartimeStart time.Time) *Calendar {
	y, m, d := wartimeStart.Date()
	return &Calendar{
		loc:          loc,
		wartimeLocal: time.Date(y, m, d, 0, 0, 0, 0, loc),
	}
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// WartimeYear returns the calendar year the wartime period starts in.
// Eligibility counts good years strictly before it as pre-war.
func (c *Calendar) WartimeYear() int { return c.wartimeLocal.Year() }

// Enrich fills the local calendar fields of rec from its UTC timestamp.
func (c *Calendar) Enrich(rec HourlyRecord) HourlyRecord {
	local := rec.LoggedAt.In(c.loc)
	y, m, d := local.Date()

	rec.LoggedAtLocal = local
	rec.DateLocal = time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	rec.HourLocal = local.Hour()
	rec.Year = y
	rec.Month = int(m)
	_, rec.ISOWeek = local.ISOWeek()
	rec.Weekday = mondayIndexed(local.Weekday())
	rec.Season = SeasonOf(int(m))
	rec.IsWartime = !local.Before(c.wartimeLocal)
	rec.Period = periodFor(rec.IsWartime)
	return rec
}

// PeriodOfDate classifies a local calendar date. Hourly records and the
// daily rows derived from them always agree: the wartime boundary is a
// local midnight, so a date is either entirely pre-war or entirely wartime.
func (c *Calendar) PeriodOfDate(date time.Time) Period {
	return periodFor(!date.Before(c.wartimeLocal))
}

func periodFor(wartime bool) Period {
	if wartime {
		return PeriodWartime
	}
	return PeriodPreWar
}

// mondayIndexed converts Go's Sunday-first weekday to Monday=0..Sunday=6.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// SeasonOf maps a month number (1-12) to its meteorological season.
func SeasonOf(month int) string {
	switch month {
	case 12, 1, 2:
		return "winter"
	case 3, 4, 5:
		return "spring"
	case 6, 7, 8:
		return "summer"
	default:
		return "autumn"
	}
}
