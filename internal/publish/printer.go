// Package publish fans stored observations out to stdout, MQTT and InfluxDB.
package publish

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// PrintTimeLayout is dd-mm-yyyy hh:mm:ss.
const PrintTimeLayout = "02-01-2006 15:04:05"

// Printer writes each observation as a header line followed by its flattened document.
type Printer struct {
	mu  sync.Mutex
	w   io.Writer
	loc *time.Location
}

// NewPrinter prints timestamps in tz; nil means local time.
func NewPrinter(w io.Writer, tz *time.Location) *Printer {
	if tz == nil {
		tz = time.Local
	}
	return &Printer{w: w, loc: tz}
}

func (p *Printer) Name() string { return "print" }

func (p *Printer) Publish(_ context.Context, loc weather.Location, obs weather.Observation) error {
	doc := obs.Display
	if len(doc) == 0 {
		doc = obs.Raw
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bw := bufio.NewWriter(p.w)
	fmt.Fprintf(bw, "Weather data fetched successfully for bus stop %s at %s.\n",
		loc.Label(), obs.FetchedAt.In(p.loc).Format(PrintTimeLayout))
	if err := weather.WriteFlat(bw, doc); err != nil {
		return failure.New(failure.Decode, "print observation", err)
	}
	fmt.Fprintln(bw)
	return bw.Flush()
}
