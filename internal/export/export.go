// Package export renders earthquake lists as downloadable CSV or
// spreadsheet-compatible HTML tables.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/domain"
)

var (
	// ErrUnknownFormat is returned for an export format other than csv or xls.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrMissingRange is returned when a ranged export lacks a from or to date.
	ErrMissingRange = errors.New("export range requires both from and to dates")
)

// Format is an export file format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatXLS Format = "xls"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLS:
		return FormatXLS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLS {
		return "application/vnd.ms-excel"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download filename for the format.
func (f Format) Filename() string {
	return "earthquakes." + string(f)
}

// Request selects what to export.
type Request struct {
	Format Format
	All    bool
	From   time.Time
	To     time.Time
}

// Select returns the quakes the request covers. When All is false both From
// and To are required and the To day is included whole.
func (r Request) Select(quakes []domain.Quake, loc *time.Location) ([]domain.Quake, error) {
	if r.All {
		return quakes, nil
	}
	if r.From.IsZero() || r.To.IsZero() {
		return nil, ErrMissingRange
	}
	return domain.FilterRange(quakes, r.From, r.To, loc), nil
}

var header = []string{"Date", "Place", "Magnitude", "Depth"}

// Write renders quakes in format f to w.
func Write(w io.Writer, f Format, quakes []domain.Quake) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, quakes)
	case FormatXLS:
		return WriteXLS(w, quakes)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteCSV writes a header row followed by one row per quake.
func WriteCSV(w io.Writer, quakes []domain.Quake) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range quakes {
		if err := cw.Write(row(quakes[i])); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

var xlsTemplate = template.Must(template.New("xls").Parse(`<table border="1">
<tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
`))

// WriteXLS writes an HTML table that spreadsheet applications open as a worksheet.
func WriteXLS(w io.Writer, quakes []domain.Quake) error {
	rows := make([][]string, len(quakes))
	for i := range quakes {
		rows[i] = row(quakes[i])
	}
	data := struct {
		Header []string
		Rows   [][]string
	}{Header: header, Rows: rows}

	if err := xlsTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render xls: %w", err)
	}
	return nil
}

func row(q domain.Quake) []string {
	date := q.RawDate
	if date == "" {
		date = q.Time.UTC().Format(time.RFC3339)
	}
	return []string{
		date,
		q.Place,
		strconv.FormatFloat(q.Magnitude, 'f', -1, 64),
		strconv.FormatFloat(q.Geo.Depth, 'f', -1, 64),
	}
}
