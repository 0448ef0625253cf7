// Command genmock writes a deterministic mock earthquake FeatureCollection in
// the shape of the Kaggle/USGS dataset the service loads. A fixed seed always
// produces the same file, so it can back demos and fixture-driven tests.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/quakes.geojson \
//	  -start 2023-02-01 -days 14 -count 120 -invalid 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/domain"
)

// region is a seismically active area events are scattered around.
type region struct {
	name     string
	state    string
	lat, lon float64
	spread   float64 // degrees
	maxDepth float64 // km
	weight   int
}

var regions = []region{
	{name: "Kahramanmaras earthquake sequence", state: "Turkey", lat: 37.6, lon: 37.2, spread: 1.2, maxDepth: 25, weight: 6},
	{name: "Southern California", state: "California", lat: 34.2, lon: -117.4, spread: 1.5, maxDepth: 20, weight: 8},
	{name: "Central Alaska", state: "Alaska", lat: 61.6, lon: -150.2, spread: 2.5, maxDepth: 120, weight: 6},
	{name: "Puerto Rico", state: "Puerto Rico", lat: 18.0, lon: -66.8, spread: 0.8, maxDepth: 30, weight: 3},
	{name: "Tonga", state: "Tonga", lat: -20.5, lon: -174.8, spread: 2.0, maxDepth: 300, weight: 4},
	{name: "Honshu, Japan", state: "Japan", lat: 37.8, lon: 141.9, spread: 1.8, maxDepth: 90, weight: 5},
	{name: "Northern Chile", state: "Chile", lat: -22.4, lon: -68.6, spread: 1.5, maxDepth: 180, weight: 4},
	{name: "Hawaii", state: "Hawaii", lat: 19.4, lon: -155.3, spread: 0.4, maxDepth: 15, weight: 4},
}

var statuses = []string{"reviewed", "reviewed", "reviewed", "automatic"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the GeoJSON FeatureCollection")
	start := flag.String("start", "2023-02-01", "first UTC day of the generated range (YYYY-MM-DD)")
	days := flag.Int("days", 14, "number of days events are spread over")
	count := flag.Int("count", 120, "number of valid events to generate")
	invalid := flag.Int("invalid", 0, "number of extra events with an unparseable date")
	seed := flag.Uint64("seed", 20230206, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *days < 1 || *count < 0 || *invalid < 0 {
		return fmt.Errorf("days must be positive and counts non-negative")
	}
	first, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	features := generate(rng, first, *days, *count, *invalid)

	fc := domain.RawFeatureCollection{Type: "FeatureCollection", Features: features}
	if err := writeJSON(*out, fc); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d features (%d invalid): %s", len(features), *invalid, *out)

	printStats(features)
	return nil
}

func generate(rng *rand.Rand, first time.Time, days, count, invalid int) []domain.RawFeature {
	total := 0
	for _, r := range regions {
		total += r.weight
	}
	span := time.Duration(days) * 24 * time.Hour

	features := make([]domain.RawFeature, 0, count+invalid)
	for i := 0; i < count+invalid; i++ {
		r := pickRegion(rng, total)
		ts := first.Add(time.Duration(rng.Int64N(int64(span)))).Truncate(time.Millisecond)
		// Gutenberg-Richter-like: many small events, few large ones.
		mag := round(2.5+rng.ExpFloat64()*0.8, 1)
		if mag > 8.5 {
			mag = 8.5
		}
		depth := round(rng.Float64()*r.maxDepth, 2)
		lat := round(r.lat+(rng.Float64()*2-1)*r.spread, 4)
		lon := round(r.lon+(rng.Float64()*2-1)*r.spread, 4)

		date := ts.Format("2006-01-02 15:04:05.000000-07:00")
		props := map[string]any{
			"magnitudo":    mag,
			"place":        fmt.Sprintf("%d km %s of %s", 5+rng.IntN(90), compass(rng), r.name),
			"time":         ts.UnixMilli(),
			"date":         date,
			"status":       statuses[rng.IntN(len(statuses))],
			"tsunami":      boolInt(mag >= 6.5 && depth < 70),
			"significance": int(math.Round(mag * mag * 30)),
			"data_type":    "earthquake",
			"state":        " " + r.state,
		}
		if i >= count {
			// Neither the date string nor the epoch field can be recovered.
			props["date"] = "unknown"
			delete(props, "time")
		}

		features = append(features, domain.RawFeature{
			Type:       "Feature",
			Geometry:   domain.PointGeometry(lon, lat, depth),
			Properties: props,
		})
	}

	sort.SliceStable(features, func(i, j int) bool {
		return fmt.Sprint(features[i].Properties["date"]) < fmt.Sprint(features[j].Properties["date"])
	})
	return features
}

func pickRegion(rng *rand.Rand, total int) region {
	n := rng.IntN(total)
	for _, r := range regions {
		if n < r.weight {
			return r
		}
		n -= r.weight
	}
	return regions[len(regions)-1]
}

func compass(rng *rand.Rand) string {
	dirs := [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	return dirs[rng.IntN(len(dirs))]
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats parses the generated features the same way the service does and
// prints counts useful for updating test assertions.
func printStats(features []domain.RawFeature) {
	var quakes []domain.Quake
	rejected := 0
	for _, f := range features {
		q, err := domain.ParseQuakeFeature(f)
		if err != nil {
			rejected++
			continue
		}
		quakes = append(quakes, q)
	}
	tl := domain.NewTimeline(quakes, time.UTC)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Valid: %d, rejected: %d\n", len(quakes), rejected)
	fmt.Printf("Timeline: %d days (%s to %s)\n", tl.Len(), tl.Start().Format("2006-01-02"), tl.End().Format("2006-01-02"))

	colors := map[string]int{}
	var tsunamis, strong int
	for i := range quakes {
		colors[domain.DepthColor(quakes[i].Geo.Depth, domain.ColorScaleDeepRed)]++
		if quakes[i].Tsunami {
			tsunamis++
		}
		if quakes[i].Magnitude >= 5 {
			strong++
		}
	}
	fmt.Printf("Magnitude >= 5: %d, tsunami flagged: %d\n", strong, tsunamis)
	fmt.Println("By depth band:")
	for _, e := range domain.Legend(domain.ColorScaleDeepRed) {
		fmt.Printf("  %-8s %d\n", e.Label, colors[e.Color])
	}
	fmt.Println("Per day (daily mode):")
	for i := 0; i < tl.Len(); i++ {
		f, err := tl.Frame(domain.ModeDaily, i)
		if err != nil {
			continue
		}
		fmt.Printf("  %s %d\n", f.Date.Format("2006-01-02"), len(f.Quakes))
	}
}
