package domain

import (
	"fmt"
	"strconv"
)

// ColorScale selects the direction of the depth palette.
type ColorScale string

const (
	// ColorScaleDeepRed paints the deepest events red and the shallowest green.
	ColorScaleDeepRed ColorScale = "deep-red"
	// ColorScaleShallowRed paints the shallowest events red and the deepest green.
	ColorScaleShallowRed ColorScale = "shallow-red"
)

// depthPalette is ordered from the deepest bucket (>90 km) to the shallowest.
var depthPalette = [...]string{"#d73027", "#fc8d59", "#fee08b", "#d9ef8b", "#91cf60", "#1a9850"}

// depthThresholds are the lower bounds (exclusive) of each palette bucket, deepest first.
var depthThresholds = [...]float64{90, 70, 50, 30, 10}

// legendGrades are the lower edges of the legend intervals.
var legendGrades = [...]float64{-10, 10, 30, 50, 70, 90}

// ParseColorScale validates a configured scale name. Empty selects deep-red.
func ParseColorScale(s string) (ColorScale, error) {
	switch ColorScale(s) {
	case "", ColorScaleDeepRed:
		return ColorScaleDeepRed, nil
	case ColorScaleShallowRed:
		return ColorScaleShallowRed, nil
	default:
		return "", fmt.Errorf("unknown color scale %q", s)
	}
}

// MarkerRadius returns the circle marker radius in pixels for a magnitude.
func MarkerRadius(magnitude float64) float64 {
	return magnitude * 5
}

// DepthColor returns the fill color for a hypocentre depth in km.
func DepthColor(depth float64, scale ColorScale) string {
	bucket := len(depthThresholds)
	for i, threshold := range depthThresholds {
		if depth > threshold {
			bucket = i
			break
		}
	}
	if scale == ColorScaleShallowRed {
		bucket = len(depthPalette) - 1 - bucket
	}
	return depthPalette[bucket]
}

// LegendEntry is one row of the depth legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend returns the depth legend rows, shallowest first. The last interval is open-ended.
func Legend(scale ColorScale) []LegendEntry {
	entries := make([]LegendEntry, 0, len(legendGrades))
	for i, grade := range legendGrades {
		label := formatGrade(grade)
		if i+1 < len(legendGrades) {
			label += "–" + formatGrade(legendGrades[i+1])
		} else {
			label += "+"
		}
		entries = append(entries, LegendEntry{
			Label: label,
			Color: DepthColor(grade+1, scale),
		})
	}
	return entries
}

func formatGrade(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
