package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-onleihe/models"
	"github.com/google/go-cmp/cmp"
)

func sampleResults() []*models.SearchResult {
	lib := models.NewLibrary("https://www2.onleihe.de/verbund/", []string{"Bonn", "Köln"})
	lib.SearchURL = "https://www2.onleihe.de/verbund/frontend/search,0.html"
	at := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)
	return []*models.SearchResult{
		{Region: "Nordrheinwestfalen", Library: lib, HitCount: 42, SearchedAt: at},
		{Region: "Hessen", Library: models.NewLibrary("http://www.stadt-a.de/", nil), Err: errors.New("boom"), SearchedAt: at},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	want := []string{
		"Nordrheinwestfalen", "verbund", "42",
		"https://www2.onleihe.de/verbund/frontend/search,0.html",
		"https://www2.onleihe.de/verbund/", "Bonn; Köln", "", "2025-11-04T13:09:13Z",
	}
	if diff := cmp.Diff(want, records[1]); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
	if records[2][6] != "boom" {
		t.Fatalf("error column = %q, want boom", records[2][6])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	var decoded []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	if decoded[0].HitCount != 42 || decoded[0].Library != "verbund" {
		t.Fatalf("first record = %+v", decoded[0])
	}
	if decoded[1].Error != "boom" {
		t.Fatalf("second record error = %q", decoded[1].Error)
	}
}

func TestNewWriterDual(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewWriter("dual", filepath.Join(dir, "results.out"))
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	for _, name := range []string{"results.csv", "results.jsonl"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", name)
		}
	}
}

func TestNewWriterUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "results.xml")); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
