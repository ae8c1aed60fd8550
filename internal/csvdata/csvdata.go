// Package csvdata reads and writes the semicolon-separated stop and trip exports
// and computes the small statistics the operators run over them.
package csvdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/stopweather/internal/common"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// Column names of the stop export, as written by WriteStops.
var StopHeader = []string{
	"Cislo zastavky",
	"Zemepisna sirka",
	"Zemepisna dlzka",
	"Stat",
	"Okres",
	"Obec",
	"Cast obce",
	"Nazov zastavky",
}

// DateLayout is the yy-mm-dd format of the trip export's date column.
const DateLayout = "06-01-02"

// ErrNoRows is returned when a file has a header but no data rows.
var ErrNoRows = errors.New("csv has no data rows")

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// ParseDecimal parses a number that may use a comma as decimal separator.
// An empty field is zero.
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

// FormatDecimal renders v with a comma decimal separator, the way the exports store it.
func FormatDecimal(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", ",", 1)
}

// header maps normalized column names to their index.
type header map[string]int

func readHeader(cr *csv.Reader) (header, error) {
	rec, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, failure.New(failure.Decode, "read header", ErrNoRows)
	}
	if err != nil {
		return nil, failure.New(failure.Decode, "read header", err)
	}
	h := make(header, len(rec))
	for i, name := range rec {
		h[common.NormalizeHeader(name)] = i
	}
	return h, nil
}

func (h header) index(name string) (int, error) {
	i, ok := h[common.NormalizeHeader(name)]
	if !ok {
		return 0, failure.Newf(failure.Decode, "read header", "missing column %q", name)
	}
	return i, nil
}

func (h header) optional(name string) int {
	if i, ok := h[common.NormalizeHeader(name)]; ok {
		return i
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ReadStops parses a stop export. The stop id and both coordinate columns are required.
func ReadStops(r io.Reader) ([]weather.Location, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	idCol, err := h.index("Cislo zastavky")
	if err != nil {
		return nil, err
	}
	latCol, err := h.index("Zemepisna sirka")
	if err != nil {
		return nil, err
	}
	lonCol, err := h.index("Zemepisna dlzka")
	if err != nil {
		return nil, err
	}
	stateCol, regionCol := h.optional("Stat"), h.optional("Okres")
	townCol, partCol, nameCol := h.optional("Obec"), h.optional("Cast obce"), h.optional("Nazov zastavky")

	var out []weather.Location
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, failure.New(failure.Decode, "read stops", err)
		}
		line, _ := cr.FieldPos(0)

		id, err := strconv.ParseInt(field(rec, idCol), 10, 64)
		if err != nil {
			return nil, failure.New(failure.Decode, fmt.Sprintf("line %d: stop id", line), err)
		}
		lat, err := ParseDecimal(field(rec, latCol))
		if err != nil {
			return nil, failure.New(failure.Decode, fmt.Sprintf("line %d: latitude", line), err)
		}
		lon, err := ParseDecimal(field(rec, lonCol))
		if err != nil {
			return nil, failure.New(failure.Decode, fmt.Sprintf("line %d: longitude", line), err)
		}

		out = append(out, weather.Location{
			StopID:    id,
			Latitude:  lat,
			Longitude: lon,
			State:     field(rec, stateCol),
			Region:    field(rec, regionCol),
			Town:      field(rec, townCol),
			TownPart:  field(rec, partCol),
			StopName:  field(rec, nameCol),
		})
	}
	return out, nil
}

// WriteStops writes stops in the export layout with comma decimals.
func WriteStops(w io.Writer, stops []weather.Location) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(StopHeader); err != nil {
		return err
	}
	for _, s := range stops {
		if err := cw.Write([]string{
			strconv.FormatInt(s.StopID, 10),
			FormatDecimal(s.Latitude),
			FormatDecimal(s.Longitude),
			s.State,
			s.Region,
			s.Town,
			s.TownPart,
			s.StopName,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CountMissingCoordinates counts data rows whose second and third columns are both zero.
func CountMissingCoordinates(r io.Reader) (int, error) {
	cr := newReader(r)
	if _, err := readHeader(cr); err != nil {
		return 0, err
	}

	count := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return 0, failure.New(failure.Decode, "count missing", err)
		}
		lat, latErr := ParseDecimal(field(rec, 1))
		lon, lonErr := ParseDecimal(field(rec, 2))
		if latErr == nil && lonErr == nil && lat == 0 && lon == 0 {
			count++
		}
	}
}

// MinMaxDates returns the earliest and latest yy-mm-dd date of the second column.
func MinMaxDates(r io.Reader) (minDate, maxDate string, err error) {
	cr := newReader(r)
	if _, err := readHeader(cr); err != nil {
		return "", "", err
	}

	var lo, hi time.Time
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", failure.New(failure.Decode, "read dates", err)
		}
		d, err := time.Parse(DateLayout, field(rec, 1))
		if err != nil {
			line, _ := cr.FieldPos(0)
			return "", "", failure.New(failure.Decode, fmt.Sprintf("line %d: date", line), err)
		}
		if rows == 0 || d.Before(lo) {
			lo = d
		}
		if rows == 0 || d.After(hi) {
			hi = d
		}
		rows++
	}
	if rows == 0 {
		return "", "", failure.New(failure.Decode, "read dates", ErrNoRows)
	}
	return lo.Format(DateLayout), hi.Format(DateLayout), nil
}

// MostCommonStop returns the StopId that occurs most often in a trip export and its count.
// On a tie the id seen first wins.
func MostCommonStop(r io.Reader) (stopID string, count int, err error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return "", 0, err
	}
	col, err := h.index("StopId")
	if err != nil {
		return "", 0, err
	}

	counts := make(map[string]int)
	var order []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, failure.New(failure.Decode, "read trips", err)
		}
		id := field(rec, col)
		if _, seen := counts[id]; !seen {
			order = append(order, id)
		}
		counts[id]++
	}
	if len(order) == 0 {
		return "", 0, failure.New(failure.Decode, "read trips", ErrNoRows)
	}

	for _, id := range order {
		if counts[id] > count {
			stopID, count = id, counts[id]
		}
	}
	return stopID, count, nil
}

// LookupStop finds a stop by its 'Cislo zastavky' and returns its town and name.
func LookupStop(r io.Reader, stopID string) (town, name string, found bool, err error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return "", "", false, err
	}
	idCol, err := h.index("Cislo zastavky")
	if err != nil {
		return "", "", false, err
	}
	townCol, nameCol := h.optional("Obec"), h.optional("Nazov zastavky")

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return "", "", false, nil
		}
		if err != nil {
			return "", "", false, failure.New(failure.Decode, "read stops", err)
		}
		if field(rec, idCol) == stopID {
			return field(rec, townCol), field(rec, nameCol), true, nil
		}
	}
}
