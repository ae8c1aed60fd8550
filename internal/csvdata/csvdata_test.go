package csvdata

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

const stopsCSV = "\ufeffCislo zastavky;Zemepisna sirka;Zemepisna dlzka;Stat;Okres;Obec;Cast obce;Nazov zastavky\n" +
	"101;49,201359;18,754791;SK;ZA;Zilina;Centrum;Zeleznicna stanica\n" +
	"102;0;0;SK;ZA;Zilina;Vlcince;Vlcince, sidlisko\n" +
	"103;49,21;18,74;SK;ZA;Zilina;Hliny;Hlinska\n" +
	"104;0;0;SK;ZA;Varin;;Namestie\n" +
	"105;49,1;0;SK;ZA;Varin;;Pod horou\n"

func TestParseDecimal(t *testing.T) {
	got, err := ParseDecimal("49,201359")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 49.201359 {
		t.Fatalf("expected 49.201359, got %v", got)
	}

	if v, err := ParseDecimal(" 18.5 "); err != nil || v != 18.5 {
		t.Fatalf("expected dot decimals to parse, got %v %v", v, err)
	}
	if v, err := ParseDecimal(""); err != nil || v != 0 {
		t.Fatalf("expected empty field to be zero, got %v %v", v, err)
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}

func TestCountMissingCoordinates(t *testing.T) {
	n, err := CountMissingCoordinates(strings.NewReader(stopsCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stops without coordinates, got %d", n)
	}
}

func TestMinMaxDates(t *testing.T) {
	data := "TripId;Date;StopId\n1;24-01-10;101\n2;24-03-05;102\n3;24-02-01;101\n"
	lo, hi, err := MinMaxDates(strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lo != "24-01-10" || hi != "24-03-05" {
		t.Fatalf("expected (24-01-10, 24-03-05), got (%s, %s)", lo, hi)
	}
}

func TestMinMaxDatesErrors(t *testing.T) {
	if _, _, err := MinMaxDates(strings.NewReader("TripId;Date\n")); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	_, _, err := MinMaxDates(strings.NewReader("TripId;Date\n1;2024/01/10\n"))
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestMostCommonStopAndLookup(t *testing.T) {
	trips := "TripId;Date;StopId\n1;24-01-10;103\n2;24-01-10;101\n3;24-01-11;101\n4;24-01-11;103\n5;24-01-12;102\n"
	id, count, err := MostCommonStop(strings.NewReader(trips))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "103" || count != 2 {
		t.Fatalf("expected first-seen 103 to win the tie, got %s (%d)", id, count)
	}

	town, name, found, err := LookupStop(strings.NewReader(stopsCSV), id)
	if err != nil || !found {
		t.Fatalf("expected stop to be found, got %v %v", found, err)
	}
	if town != "Zilina" || name != "Hlinska" {
		t.Fatalf("unexpected stop %s, %s", town, name)
	}

	_, _, found, err = LookupStop(strings.NewReader(stopsCSV), "999")
	if err != nil || found {
		t.Fatalf("expected not found, got %v %v", found, err)
	}
}

func TestMostCommonStopNeedsColumn(t *testing.T) {
	_, _, err := MostCommonStop(strings.NewReader("TripId;Date\n1;24-01-10\n"))
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestReadAndWriteStops(t *testing.T) {
	stops, err := ReadStops(strings.NewReader(stopsCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stops) != 5 {
		t.Fatalf("expected 5 stops, got %d", len(stops))
	}
	want := weather.Location{
		StopID: 101, Latitude: 49.201359, Longitude: 18.754791,
		State: "SK", Region: "ZA", Town: "Zilina", TownPart: "Centrum", StopName: "Zeleznicna stanica",
	}
	if stops[0] != want {
		t.Fatalf("unexpected first stop %+v", stops[0])
	}
	if stops[1].HasCoordinates() || stops[4].HasCoordinates() {
		t.Fatal("expected zero coordinates to be reported as missing")
	}

	var buf bytes.Buffer
	if err := WriteStops(&buf, stops[:2]); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[1] != "101;49,201359;18,754791;SK;ZA;Zilina;Centrum;Zeleznicna stanica" {
		t.Fatalf("unexpected written row %q", lines[1])
	}
	if lines[2] != `102;0;0;SK;ZA;Zilina;Vlcince;Vlcince, sidlisko` {
		t.Fatalf("unexpected written row %q", lines[2])
	}

	again, err := ReadStops(&buf)
	if err != nil || len(again) != 2 || again[0] != want {
		t.Fatalf("expected written file to read back, got %+v %v", again, err)
	}
}

func TestReadStopsRejectsBadID(t *testing.T) {
	data := "Cislo zastavky;Zemepisna sirka;Zemepisna dlzka\nabc;1;2\n"
	_, err := ReadStops(strings.NewReader(data))
	if !failure.Is(err, failure.Decode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}
