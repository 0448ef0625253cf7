// Command validate checks an earthquake FeatureCollection (and optionally a
// plate-boundary FeatureCollection) against the invariants the service relies
// on: unusable features are excluded, depth comes from the third coordinate,
// cumulative frames only ever grow, and daily frames partition the catalog.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -quakes data/quakes.geojson \
//	  -plates data/plates.geojson \
//	  -expect-rejected 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	quakesPath := flag.String("quakes", "", "path to the earthquake GeoJSON FeatureCollection")
	platesPath := flag.String("plates", "", "optional path to the plate boundary GeoJSON FeatureCollection")
	expectRejected := flag.Int("expect-rejected", -1, "expected number of excluded features (-1 to skip)")
	tz := flag.String("tz", "UTC", "IANA time zone timeline days are evaluated in")
	flag.Parse()

	if *quakesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*quakesPath, *platesPath, *expectRejected, *tz); code != 0 {
		os.Exit(code)
	}
}

func run(quakesPath, platesPath string, expectRejected int, tz string) int {
	// Fixed clock so frame timestamps in the report are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	loc, err := time.LoadLocation(tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load time zone: %v\n", err)
		return 1
	}

	fmt.Println("=== Earthquake Data Integrity Validation ===")
	fmt.Println()

	doc, err := os.ReadFile(quakesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read quakes: %v\n", err)
		return 1
	}
	var raw domain.RawFeatureCollection
	if err := json.Unmarshal(doc, &raw); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse quakes: %v\n", err)
		return 1
	}

	decoder := pipeline.NewDecoder(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	quakes, rejected, err := decoder.DecodeQuakes(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode quakes: %v\n", err)
		return 1
	}
	tl := domain.NewTimeline(quakes, loc)

	phases := []*phase{
		validateDecode(raw, quakes, rejected, expectRejected),
		validateDepth(raw),
		validateCumulative(tl),
		validateDaily(tl),
	}
	if platesPath != "" {
		phases = append(phases, validatePlates(platesPath))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Features: %d raw, %d accepted, %d excluded; timeline %d days in %s\n",
		len(raw.Features), len(quakes), rejected, tl.Len(), loc)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Decode ──
// Accepted plus excluded features account for the whole document.

func validateDecode(raw domain.RawFeatureCollection, quakes []domain.Quake, rejected, expectRejected int) *phase {
	p := &phase{name: "Phase 1: Decode (accepted + excluded)"}

	if len(quakes)+rejected != len(raw.Features) {
		p.errorf("accepted %d + excluded %d != %d features", len(quakes), rejected, len(raw.Features))
	}
	if expectRejected >= 0 && rejected != expectRejected {
		p.errorf("excluded: expected %d, got %d", expectRejected, rejected)
	}

	seen := make(map[string]bool, len(quakes))
	for i := range quakes {
		if quakes[i].Time.IsZero() {
			p.errorf("quake %s: zero timestamp", quakes[i].ID)
		}
		if seen[quakes[i].ID] {
			p.errorf("quake %s: duplicate ID (%q)", quakes[i].ID, quakes[i].Place)
		}
		seen[quakes[i].ID] = true
	}
	return p
}

// ── Phase 2: Depth ──
// Depth is the third component of each accepted point.

func validateDepth(raw domain.RawFeatureCollection) *phase {
	p := &phase{name: "Phase 2: Depth (third coordinate)"}

	for i, f := range raw.Features {
		q, err := domain.ParseQuakeFeature(f)
		if err != nil {
			continue
		}
		coords, _ := f.Geometry.Position()
		want := 0.0
		if len(coords) > 2 {
			want = coords[2]
		}
		if q.Geo.Depth != want {
			p.errorf("feature %d: depth %v, coordinates[2] = %v", i, q.Geo.Depth, want)
		}
		if q.Geo.Lon != coords[0] || q.Geo.Lat != coords[1] {
			p.errorf("feature %d: position (%v,%v) does not match coordinates", i, q.Geo.Lon, q.Geo.Lat)
		}
	}
	return p
}

// ── Phase 3: Cumulative ──
// cumulative(i) ⊇ cumulative(i-1), and the last frame holds everything.

func validateCumulative(tl *domain.Timeline) *phase {
	p := &phase{name: "Phase 3: Cumulative frames (superset)"}

	prev := map[string]bool{}
	for i := 0; i < tl.Len(); i++ {
		f, err := tl.Frame(domain.ModeCumulative, i)
		if err != nil {
			p.errorf("frame %d: %v", i, err)
			return p
		}
		cur := make(map[string]bool, len(f.Quakes))
		for _, q := range f.Quakes {
			cur[q.ID] = true
		}
		for id := range prev {
			if !cur[id] {
				p.errorf("frame %d (%s): missing %s from frame %d", i, f.Date.Format("2006-01-02"), id, i-1)
			}
		}
		prev = cur
	}
	if tl.Len() > 0 && len(prev) != tl.Total() {
		p.errorf("last cumulative frame holds %d of %d quakes", len(prev), tl.Total())
	}
	return p
}

// ── Phase 4: Daily ──
// Daily frames partition the catalog by calendar day.

func validateDaily(tl *domain.Timeline) *phase {
	p := &phase{name: "Phase 4: Daily frames (partition)"}

	seen := map[string]int{}
	for i := 0; i < tl.Len(); i++ {
		f, err := tl.Frame(domain.ModeDaily, i)
		if err != nil {
			p.errorf("frame %d: %v", i, err)
			return p
		}
		for _, q := range f.Quakes {
			seen[q.ID]++
			if day := domain.StartOfDay(q.Time, tl.Location()); !day.Equal(f.Date) {
				p.errorf("quake %s on %s listed under %s", q.ID, day.Format("2006-01-02"), f.Date.Format("2006-01-02"))
			}
		}
	}
	for _, q := range tl.Quakes() {
		if n := seen[q.ID]; n != 1 {
			p.errorf("quake %s appears in %d daily frames", q.ID, n)
		}
	}
	return p
}

// ── Phase 5: Plates ──

func validatePlates(path string) *phase {
	p := &phase{name: "Phase 5: Plate boundaries"}

	doc, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read: %v", err)
		return p
	}
	plates, err := pipeline.DecodePlates(doc)
	if err != nil {
		p.errorf("decode: %v", err)
		return p
	}
	if len(plates) == 0 {
		p.errorf("no plate boundaries with geometry")
	}
	for i, pl := range plates {
		if pl.Name == "" {
			p.errorf("plate %d: no name and no PlateA/PlateB codes", i)
		}
	}
	return p
}
