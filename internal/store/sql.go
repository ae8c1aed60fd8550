package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// Dialect names a supported SQL driver; it matches the database/sql driver name.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect validates a configured driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case Postgres, SQLite:
		return Dialect(driver), nil
	default:
		return "", failure.Newf(failure.Config, "db driver", "unsupported driver %q", driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists stops and observations in the Locations and WeatherData tables.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open connection pool.
func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// DB exposes the underlying pool.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) q(query string) string { return s.dialect.Rebind(query) }

const locationColumns = `stop_id, latitude, longitude, state, region, town, town_part, stop_name`

// ListLocations returns all stops ordered by stop id.
func (s *SQLStore) ListLocations(ctx context.Context) ([]weather.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM Locations ORDER BY stop_id`)
	if err != nil {
		return nil, failure.New(failure.Database, "list locations", err)
	}
	defer rows.Close()

	var out []weather.Location
	for rows.Next() {
		var (
			l                                       weather.Location
			state, region, town, townPart, stopName sql.NullString
		)
		if err := rows.Scan(&l.StopID, &l.Latitude, &l.Longitude, &state, &region, &town, &townPart, &stopName); err != nil {
			return nil, failure.New(failure.Database, "scan location", err)
		}
		l.State, l.Region, l.Town, l.TownPart, l.StopName = state.String, region.String, town.String, townPart.String, stopName.String
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.New(failure.Database, "list locations", err)
	}
	return out, nil
}

// ExistingStopIDs returns the set of stop ids already in Locations.
func (s *SQLStore) ExistingStopIDs(ctx context.Context) (map[int64]struct{}, error) {
	return existingStopIDs(ctx, s.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func existingStopIDs(ctx context.Context, q queryer) (map[int64]struct{}, error) {
	rows, err := q.QueryContext(ctx, `SELECT stop_id FROM Locations`)
	if err != nil {
		return nil, failure.New(failure.Database, "existing stop ids", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, failure.New(failure.Database, "scan stop id", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, failure.New(failure.Database, "existing stop ids", err)
	}
	return ids, nil
}

// ImportLocations inserts the stops whose id is not present yet, in one transaction.
// Repeated ids inside locs count as skipped.
func (s *SQLStore) ImportLocations(ctx context.Context, locs []weather.Location) (inserted, skipped int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, failure.New(failure.Database, "begin import", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := existingStopIDs(ctx, tx)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO Locations (`+locationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, 0, failure.New(failure.Database, "prepare import", err)
	}
	defer stmt.Close()

	for _, l := range locs {
		if _, ok := existing[l.StopID]; ok {
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			l.StopID, l.Latitude, l.Longitude,
			nullString(l.State), nullString(l.Region), nullString(l.Town), nullString(l.TownPart), nullString(l.StopName),
		); err != nil {
			return 0, 0, failure.New(failure.Database, fmt.Sprintf("insert stop %d", l.StopID), err)
		}
		existing[l.StopID] = struct{}{}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, failure.New(failure.Database, "commit import", err)
	}
	return inserted, skipped, nil
}

// UpdateCoordinates sets the position of an existing stop.
func (s *SQLStore) UpdateCoordinates(ctx context.Context, stopID int64, lat, lon float64) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE Locations SET latitude = ?, longitude = ? WHERE stop_id = ?`), lat, lon, stopID)
	if err != nil {
		return failure.New(failure.Database, "update coordinates", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const observationColumns = `location_id, provider, cycle_slot, fetched_at, weather, weather_condition,
	main_temp, main_feels_like, main_temp_min, main_temp_max, main_pressure, main_humidity,
	main_sea_level, main_grnd_level, visibility, wind_speed, wind_deg, wind_gust, clouds_all,
	rain_1h, rain_3h, snow_1h, snow_3h, dt, sys_sunrise, sys_sunset, timezone`

// SaveObservation inserts one WeatherData row. A row for the same location, provider and
// cycle slot is left untouched and reported as not written.
func (s *SQLStore) SaveObservation(ctx context.Context, obs weather.Observation) (bool, error) {
	m := obs.Measurements
	var raw any
	if len(obs.Raw) > 0 {
		// lib/pq sends []byte as bytea; JSONB wants text.
		raw = string(obs.Raw)
	}

	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO WeatherData (`+observationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id, provider, cycle_slot) DO NOTHING`),
		obs.LocationID, obs.Provider, dbTime(obs.CycleSlot), dbTime(obs.FetchedAt), raw, string(m.Condition),
		m.Temperature, m.FeelsLike, m.TempMin, m.TempMax, m.Pressure, m.Humidity,
		m.SeaLevel, m.GroundLevel, m.Visibility, m.WindSpeed, m.WindDeg, m.WindGust, m.CloudsAll,
		m.Rain1h, m.Rain3h, m.Snow1h, m.Snow3h,
		dbTimePtr(m.ObservedAt), dbTimePtr(m.Sunrise), dbTimePtr(m.Sunset), m.Timezone,
	)
	if err != nil {
		return false, failure.New(failure.Database, "insert observation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, failure.New(failure.Database, "insert observation", err)
	}
	return n > 0, nil
}

// HasObservation reports whether the provider already has a row for the slot.
func (s *SQLStore) HasObservation(ctx context.Context, locationID int64, provider string, slot time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT 1 FROM WeatherData WHERE location_id = ? AND provider = ? AND cycle_slot = ?`),
		locationID, provider, dbTime(slot),
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, failure.New(failure.Database, "check observation", err)
	}
	return true, nil
}

// GetLatest returns the most recently inserted row of each provider for a location.
func (s *SQLStore) GetLatest(ctx context.Context, locationID int64) ([]weather.Observation, error) {
	out, err := s.queryObservations(ctx, `SELECT weather_id, `+observationColumns+` FROM WeatherData w
		WHERE w.location_id = ?
		  AND w.weather_id = (SELECT MAX(x.weather_id) FROM WeatherData x
		                      WHERE x.location_id = w.location_id AND x.provider = w.provider)
		ORDER BY w.provider`, locationID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// GetRange returns all rows for a location fetched between from and to (inclusive).
func (s *SQLStore) GetRange(ctx context.Context, locationID int64, from, to time.Time) ([]weather.Observation, error) {
	out, err := s.queryObservations(ctx, `SELECT weather_id, `+observationColumns+` FROM WeatherData
		WHERE location_id = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at, provider`, locationID, dbTime(from), dbTime(to))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLStore) queryObservations(ctx context.Context, query string, args ...any) ([]weather.Observation, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, failure.New(failure.Database, "query observations", err)
	}
	defer rows.Close()

	var out []weather.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, failure.New(failure.Database, "scan observation", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.New(failure.Database, "query observations", err)
	}
	return out, nil
}

func scanObservation(rows *sql.Rows) (weather.Observation, error) {
	var (
		o                           weather.Observation
		raw                         []byte
		condition                   sql.NullString
		nums                        [17]sql.NullFloat64
		observedAt, sunrise, sunset sql.NullTime
		timezone                    sql.NullInt64
	)
	dest := []any{&o.ID, &o.LocationID, &o.Provider, &o.CycleSlot, &o.FetchedAt, &raw, &condition}
	for i := range nums {
		dest = append(dest, &nums[i])
	}
	dest = append(dest, &observedAt, &sunrise, &sunset, &timezone)

	if err := rows.Scan(dest...); err != nil {
		return weather.Observation{}, err
	}

	o.CycleSlot = o.CycleSlot.UTC()
	o.FetchedAt = o.FetchedAt.UTC()
	if len(raw) > 0 {
		o.Raw = append([]byte(nil), raw...)
	}

	m := &o.Measurements
	targets := []**float64{
		&m.Temperature, &m.FeelsLike, &m.TempMin, &m.TempMax, &m.Pressure, &m.Humidity,
		&m.SeaLevel, &m.GroundLevel, &m.Visibility, &m.WindSpeed, &m.WindDeg, &m.WindGust, &m.CloudsAll,
		&m.Rain1h, &m.Rain3h, &m.Snow1h, &m.Snow3h,
	}
	for i, t := range targets {
		if nums[i].Valid {
			v := nums[i].Float64
			*t = &v
		}
	}
	m.ObservedAt = timePtr(observedAt)
	m.Sunrise = timePtr(sunrise)
	m.Sunset = timePtr(sunset)
	if timezone.Valid {
		v := timezone.Int64
		m.Timezone = &v
	}
	m.Condition = weather.ConditionUnknown
	if condition.Valid && condition.String != "" {
		m.Condition = weather.Condition(condition.String)
	}
	return o, nil
}

// dbTime normalizes timestamps to UTC seconds so equality lookups match across drivers.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func dbTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
