// Command genmock generates a synthetic SaveEcoBot-style dataset for
// local pipeline runs and test fixtures: yearly hourly CSV exports, the
// city metadata table, and an administrative boundaries file. It pushes
// the generated hours through the actual domain package so the printed
// stats match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out dataset \
//	  -from 2020 -to 2024 \
//	  -cities 12 -seed 1
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	orbgeojson "github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

type cityDef struct {
	id      int64
	name    string
	region  string
	koatuu  string
	katottg string
	lat     float64
	lon     float64

	// uplift multiplies wartime concentrations; zero means no change.
	uplift float64
	// firstYear is the first year the station reports; zero means all.
	firstYear int
	// sparse stations drop most hours and should fail the coverage gate.
	sparse bool
}

var cities = []cityDef{
	{id: 1, name: "Київ", region: "місто Київ", koatuu: "8000000000", katottg: "UA80000000000093317", lat: 50.45, lon: 30.52},
	{id: 2, name: "Харків", region: "Харківська область", koatuu: "6310100000", katottg: "UA63120270010077883", lat: 49.99, lon: 36.23, uplift: 1.35},
	{id: 3, name: "Одеса", region: "Одеська область", koatuu: "5110100000", katottg: "UA51100270010222684", lat: 46.48, lon: 30.72},
	{id: 4, name: "Дніпро", region: "Дніпропетровська область", koatuu: "1210100000", katottg: "UA12020270010068076", lat: 48.46, lon: 35.04, uplift: 1.30},
	{id: 5, name: "Львів", region: "Львівська область", koatuu: "4610100000", katottg: "UA46060250010015970", lat: 49.84, lon: 24.03},
	{id: 6, name: "Запоріжжя", region: "Запорізька область", koatuu: "2310100000", katottg: "UA23060250010057348", lat: 47.84, lon: 35.14, uplift: 1.35},
	{id: 7, name: "Кривий Ріг", region: "Дніпропетровська область", koatuu: "1211000000", katottg: "UA12060170010065850", lat: 47.91, lon: 33.39},
	{id: 8, name: "Миколаїв", region: "Миколаївська область", koatuu: "4810100000", katottg: "UA48060150010077645", lat: 46.97, lon: 32.00, uplift: 1.25},
	{id: 9, name: "Вінниця", region: "Вінницька область", koatuu: "0510100000", katottg: "UA05020030010063857", lat: 49.23, lon: 28.47},
	{id: 10, name: "Полтава", region: "Полтавська область", koatuu: "5310100000", katottg: "UA53080370010063842", lat: 49.59, lon: 34.55},
	{id: 11, name: "Чернігів", region: "Чернігівська область", koatuu: "7410100000", katottg: "UA74100450010041401", lat: 51.50, lon: 31.29},
	{id: 12, name: "Черкаси", region: "Черкаська область", koatuu: "7110100000", katottg: "UA71080450010099495", lat: 49.44, lon: 32.06},
	{id: 13, name: "Суми", region: "Сумська область", koatuu: "5910700000", katottg: "UA59080330010042336", lat: 50.91, lon: 34.80, firstYear: 2022},
	{id: 14, name: "Івано-Франківськ", region: "Івано-Франківська область", koatuu: "2610100000", katottg: "UA26040370010063944", lat: 48.92, lon: 24.71, sparse: true},
}

var hourlyHeader = []string{"city_id", "city_name", "logged_at", "pm25", "aqi"}

type cityParams struct {
	base    float64
	phase   float64
	dropout float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the generated dataset")
	from := flag.Int("from", 2020, "first year to generate")
	to := flag.Int("to", 2024, "last year to generate")
	cityCount := flag.Int("cities", 0, "number of cities to include (0 = all)")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *from > *to {
		return fmt.Errorf("-from %d is after -to %d", *from, *to)
	}

	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		return err
	}
	wartime := time.Date(2022, time.February, 24, 0, 0, 0, 0, loc)
	cal := domain.NewCalendar(loc, wartime)

	defs := cities
	if *cityCount > 0 && *cityCount < len(defs) {
		defs = defs[:*cityCount]
	}

	rng := rand.New(rand.NewSource(*seed))
	params := make(map[int64]cityParams, len(defs))
	for _, c := range defs {
		p := cityParams{
			base:    9 + rng.Float64()*13,
			phase:   rng.Float64() * 2 * math.Pi,
			dropout: 0.04 + 0.10*rng.Float64(),
		}
		if c.sparse {
			p.dropout = 0.55
		}
		params[c.id] = p
	}

	var all []domain.HourlyRecord
	for year := *from; year <= *to; year++ {
		var rows [][]string
		for _, c := range defs {
			if c.firstYear != 0 && year < c.firstYear {
				continue
			}
			recs := cityYearHours(rng, c, params[c.id], year, loc, wartime)
			for _, r := range recs {
				rows = append(rows, csvRow(c, r))
			}
			all = append(all, recs...)
		}

		name := fmt.Sprintf("saveecobot_cities_pm25_and_aqi_pm25_%d.csv", year)
		if err := writeCSVFile(filepath.Join(*out, name), hourlyHeader, rows); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("%s: %d rows", name, len(rows))
	}

	metaPath := filepath.Join(*out, "saveecobot_cities.csv")
	if err := writeCSVFile(metaPath, []string{"id", "city_name", "region_name", "koatuu", "katottg"}, metadataRows(defs)); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	log.Printf("wrote metadata: %s", metaPath)

	geoPath := filepath.Join(*out, "geo", "ukraine_adm_boundaries.geojson")
	if err := writeBoundaries(geoPath, defs); err != nil {
		return fmt.Errorf("writing boundaries: %w", err)
	}
	log.Printf("wrote boundaries: %s", geoPath)

	printStats(all, cal, defs)
	return nil
}

// cityYearHours generates one station-year of hourly readings. Hours are
// dropped at the station's dropout rate to create realistic coverage
// variation; a small share of the surviving hours carry a missing value
// or an out-of-range spike.
func cityYearHours(rng *rand.Rand, c cityDef, p cityParams, year int, loc *time.Location, wartime time.Time) []domain.HourlyRecord {
	var recs []domain.HourlyRecord
	for ts := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); ts.Year() == year; ts = ts.Add(time.Hour) {
		if rng.Float64() < p.dropout {
			continue
		}

		uplift := 1.0
		if c.uplift > 0 && !ts.Before(wartime) {
			uplift = c.uplift
		}
		v := pm25At(rng, p, ts.In(loc), uplift)

		pm25 := &v
		var aqi *float64
		switch r := rng.Float64(); {
		case r < 0.002:
			spike := 1200 + rng.Float64()*400
			pm25 = &spike
			a := aqiFromPM25(spike)
			aqi = &a
		case r < 0.012:
			pm25, aqi = nil, nil
		default:
			a := aqiFromPM25(v)
			aqi = &a
		}

		recs = append(recs, domain.HourlyRecord{
			CityID:     c.id,
			CityName:   c.name,
			RegionName: c.region,
			LoggedAt:   ts,
			PM25:       pm25,
			AQI:        aqi,
		})
	}
	return recs
}

// pm25At models a winter-peaked seasonal cycle with a diurnal swing on
// top of the station baseline, plus gaussian noise.
func pm25At(rng *rand.Rand, p cityParams, local time.Time, uplift float64) float64 {
	seasonal := 1 + 0.45*math.Cos(2*math.Pi*(float64(local.YearDay())-15)/365)
	diurnal := 1 + 0.2*math.Sin(2*math.Pi*float64(local.Hour())/24+p.phase)
	v := p.base*seasonal*diurnal*uplift + rng.NormFloat64()*2.5
	if v < 1 {
		v = 1
	}
	return v
}

// aqiFromPM25 maps a concentration onto the US EPA PM2.5 AQI scale by
// linear interpolation within each breakpoint band.
func aqiFromPM25(c float64) float64 {
	bands := []struct{ cLo, cHi, iLo, iHi float64 }{
		{0, 12, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	}
	if c >= 500.4 {
		return 500
	}
	for _, b := range bands {
		if c <= b.cHi {
			return math.Round(b.iLo + (c-b.cLo)*(b.iHi-b.iLo)/(b.cHi-b.cLo))
		}
	}
	return 500
}

func csvRow(c cityDef, r domain.HourlyRecord) []string {
	return []string{
		strconv.FormatInt(c.id, 10),
		c.name,
		r.LoggedAt.Format("2006-01-02 15:04:05"),
		formatReading(r.PM25, 1),
		formatReading(r.AQI, 0),
	}
}

func formatReading(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func metadataRows(defs []cityDef) [][]string {
	rows := make([][]string, 0, len(defs))
	for _, c := range defs {
		rows = append(rows, []string{strconv.FormatInt(c.id, 10), c.name, c.region, c.koatuu, c.katottg})
	}
	return rows
}

func writeCSVFile(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeBoundaries emits one rectangular polygon per distinct region,
// keyed the way the real boundaries file is: a Ukrainian name property
// plus the region-level koatuu code.
func writeBoundaries(path string, defs []cityDef) error {
	fc := orbgeojson.NewFeatureCollection()
	seen := map[string]bool{}
	for _, c := range defs {
		if seen[c.region] {
			continue
		}
		seen[c.region] = true

		ring := orb.Ring{
			{c.lon - 1.2, c.lat - 0.8},
			{c.lon + 1.2, c.lat - 0.8},
			{c.lon + 1.2, c.lat + 0.8},
			{c.lon - 1.2, c.lat + 0.8},
			{c.lon - 1.2, c.lat - 0.8},
		}
		f := orbgeojson.NewFeature(orb.Polygon{ring})
		f.Properties["name"] = c.region
		f.Properties["name:uk"] = c.region
		f.Properties["koatuu"] = c.koatuu[:2] + "00000000"
		fc.Append(f)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats runs the generated hours through the real enrichment,
// validation, and eligibility code and prints the numbers test
// assertions are written against.
func printStats(recs []domain.HourlyRecord, cal *domain.Calendar, defs []cityDef) {
	valid := 0
	perYear := map[int]int{}
	for i := range recs {
		recs[i] = domain.FlagValidity(cal.Enrich(recs[i]))
		if recs[i].RecordValid {
			valid++
		}
		perYear[recs[i].Year]++
	}
	daily := domain.BuildDailyAggregates(recs, cal, 15)
	eligible := domain.EligibleCityIDsFromDaily(daily, domain.DefaultThresholds())

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Hourly rows: %d (valid %d)\n", len(recs), valid)
	years := make([]int, 0, len(perYear))
	for y := range perYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		fmt.Printf("  %d: %d rows\n", y, perYear[y])
	}
	fmt.Printf("Daily rows: %d\n", len(daily))

	fmt.Printf("Eligible cities (%d):", len(eligible))
	for _, c := range defs {
		if _, ok := eligible[c.id]; ok {
			fmt.Printf(" %s", c.name)
		}
	}
	fmt.Println()
}
