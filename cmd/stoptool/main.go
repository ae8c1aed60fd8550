// Command stoptool maintains the stop database and runs one-off analyses over the CSV exports.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/i474232898/stopweather/internal/app"
	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/csvdata"
	"github.com/i474232898/stopweather/internal/db"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/geocode"
	"github.com/i474232898/stopweather/internal/logging"
	"github.com/i474232898/stopweather/internal/publish"
	"github.com/i474232898/stopweather/internal/store"
	"github.com/i474232898/stopweather/internal/weather"
)

const appName = "stoptool"

type command struct {
	summary string
	run     func(ctx context.Context, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"import":        {"load a stop CSV into the Locations table, creating the database if needed", runImport},
	"fetch":         {"fetch and print current weather for CSV stops or one coordinate", runFetch},
	"count-missing": {"count stops whose coordinates are both zero", runCountMissing},
	"dates":         {"print the earliest and latest date of a trip export", runDates},
	"most-common":   {"print the most frequent StopId of a trip export", runMostCommon},
	"geocode":       {"fill in missing stop coordinates", runGeocode},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
	if err := cmd.run(ctx, args[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s <command> [flags]\n\ncommands:\n", appName)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

func loadConfig(path string) (*config.AppConfig, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	// stdout carries command output
	log := logging.NewWithWriter(os.Stderr, cfg, appName)
	return cfg, log, nil
}

func openCSV(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.New(failure.Config, "open csv", err)
	}
	return f, nil
}

// singleArg parses fs and returns its only positional argument.
func singleArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected one %s argument", what)
	}
	return fs.Arg(0), nil
}

func runCountMissing(_ context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("count-missing", flag.ContinueOnError)
	path, err := singleArg(fs, args, "stops csv")
	if err != nil {
		return err
	}
	f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := csvdata.CountMissingCoordinates(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Number of stops without coordinates: %d\n", n)
	return nil
}

func runDates(_ context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("dates", flag.ContinueOnError)
	path, err := singleArg(fs, args, "trips csv")
	if err != nil {
		return err
	}
	f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lo, hi, err := csvdata.MinMaxDates(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Earliest date: %s\nLatest date: %s\n", lo, hi)
	return nil
}

func runMostCommon(_ context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("most-common", flag.ContinueOnError)
	stopsPath := fs.String("stops", "", "stops csv used to name the stop")
	path, err := singleArg(fs, args, "trips csv")
	if err != nil {
		return err
	}
	f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	id, count, err := csvdata.MostCommonStop(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Most common stop: %s (%d occurrences)\n", id, count)

	if *stopsPath == "" {
		return nil
	}
	sf, err := openCSV(*stopsPath)
	if err != nil {
		return err
	}
	defer sf.Close()

	town, name, found, err := csvdata.LookupStop(sf, id)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(stdout, "Stop %s not found in %s\n", id, *stopsPath)
		return nil
	}
	fmt.Fprintf(stdout, "Town: %s\nStop name: %s\n", town, name)
	return nil
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.DefaultPath, "config file")
	file := fs.StringP("file", "f", "", "stops csv (defaults to location_data)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "" {
		return failure.Newf(failure.Config, "import", "no database configured (set db_driver)")
	}
	path := *file
	if path == "" {
		path = cfg.LocationData
	}
	if path == "" {
		return failure.Newf(failure.Config, "import", "no stops csv given")
	}

	stops, err := app.LoadStops(path)
	if err != nil {
		return err
	}

	created, err := db.EnsureDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if created {
		log.Info("database created", "name", cfg.Database.Name)
	}

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	inserted, skipped, err := st.(*store.SQLStore).ImportLocations(ctx, stops)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Inserted %d stops, skipped %d already present.\n", inserted, skipped)
	return nil
}

func runFetch(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.DefaultPath, "config file")
	file := fs.StringP("file", "f", "", "stops csv (defaults to location_data)")
	lat := fs.Float64("lat", 0, "latitude of a single point")
	lon := fs.Float64("lon", 0, "longitude of a single point")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateProviders(); err != nil {
		return err
	}

	var stops []weather.Location
	if fs.Changed("lat") || fs.Changed("lon") {
		stops = []weather.Location{{StopName: fmt.Sprintf("%f,%f", *lat, *lon), Latitude: *lat, Longitude: *lon}}
	} else {
		path := *file
		if path == "" {
			path = cfg.LocationData
		}
		if path == "" {
			return failure.Newf(failure.Config, "fetch", "give --file or --lat/--lon")
		}
		if stops, err = app.LoadStops(path); err != nil {
			return err
		}
	}

	provs, err := app.Providers(cfg)
	if err != nil {
		return err
	}
	svc := weather.NewService(store.NewMemoryStore(0, 0), provs, log)
	printer := publish.NewPrinter(stdout, nil)
	slot := time.Now().UTC()

	for _, loc := range stops {
		if !loc.HasCoordinates() {
			fmt.Fprintf(stdout, "Ignoring row for bus stop %s: Latitude or longitude is zero.\n", loc.Label())
			continue
		}
		for _, p := range provs {
			obs, err := svc.Observe(ctx, loc, p, slot)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				kind, _ := failure.KindOf(err)
				log.Error("failed to fetch weather", "stop", loc.Label(), "provider", p.Name(), "kind", kind.String(), "error", err)
				fmt.Fprintf(stdout, "Failed to fetch weather forecast for bus stop %s.\n", loc.Label())
				continue
			}
			if err := printer.Publish(ctx, loc, obs); err != nil {
				return err
			}
		}
	}
	return nil
}

func runGeocode(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("geocode", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.DefaultPath, "config file")
	in := fs.StringP("file", "f", "", "stops csv (defaults to location_data)")
	out := fs.StringP("out", "o", "", "write the completed csv here")
	updateDB := fs.Bool("update-db", false, "also store found coordinates in the Locations table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	path := *in
	if path == "" {
		path = cfg.LocationData
	}
	if path == "" {
		return failure.Newf(failure.Config, "geocode", "no stops csv given")
	}
	if *out == "" && !*updateDB {
		return failure.Newf(failure.Config, "geocode", "give --out, --update-db or both")
	}

	stops, err := app.LoadStops(path)
	if err != nil {
		return err
	}
	before := make([]weather.Location, len(stops))
	copy(before, stops)

	g, err := geocode.New(cfg.Geocoder, cfg.HTTPTimeout)
	if err != nil {
		return err
	}
	res, err := geocode.FillMissing(ctx, g, stops, cfg.Geocoder.Pace, log)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := writeStopsFile(*out, stops); err != nil {
			return err
		}
	}

	if *updateDB {
		if err := updateCoordinates(ctx, cfg, log, before, stops); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "Geocoded %d stops: %d filled, %d not found, %d failed.\n",
		res.Attempted, res.Filled, res.NotFound, res.Failed)
	return nil
}

func writeStopsFile(path string, stops []weather.Location) error {
	f, err := os.Create(path)
	if err != nil {
		return failure.New(failure.Config, "create output csv", err)
	}
	if err := csvdata.WriteStops(f, stops); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func updateCoordinates(ctx context.Context, cfg *config.AppConfig, log *slog.Logger, before, after []weather.Location) error {
	if cfg.Database.Driver == "" {
		return failure.Newf(failure.Config, "geocode", "--update-db needs a database (set db_driver)")
	}
	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	sqlStore := st.(*store.SQLStore)

	for i := range after {
		if after[i] == before[i] {
			continue
		}
		err := sqlStore.UpdateCoordinates(ctx, after[i].StopID, after[i].Latitude, after[i].Longitude)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("stop not imported yet", "stop_id", after[i].StopID)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
