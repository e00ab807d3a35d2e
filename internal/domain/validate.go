package domain

// Sensor range limits. Readings outside these bounds are physically
// implausible for the instruments in the network and are excluded from
// every numeric aggregate, though the flagged records stay in the hourly
// table for audit.
const (
	PM25Min = 0.0
	PM25Max = 1000.0
	AQIMin  = 0.0
	AQIMax  = 500.0
)

// ValidPM25 reports whether an hourly PM2.5 value is plausible.
// A nil reading is valid: an hour with no measurement is missing data,
// not bad data.
func ValidPM25(v *float64) bool {
	return v == nil || (*v >= PM25Min && *v <= PM25Max)
}

// ValidAQI reports whether an hourly AQI value is plausible.
func ValidAQI(v *float64) bool {
	return v == nil || (*v >= AQIMin && *v <= AQIMax)
}

// FlagValidity sets the record's validity flags from the range rules.
// The record is valid only when both sensor fields are.
func FlagValidity(rec HourlyRecord) HourlyRecord {
	rec.PM25Valid = ValidPM25(rec.PM25)
	rec.AQIValid = ValidAQI(rec.AQI)
	rec.RecordValid = rec.PM25Valid && rec.AQIValid
	return rec
}

// ExceedsGuideline reports whether a PM2.5 reading is strictly above the
// guideline threshold. nil readings never exceed.
func ExceedsGuideline(v *float64, guideline float64) bool {
	return v != nil && *v > guideline
}
