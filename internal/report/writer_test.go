package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"conncheck/internal/domain"
)

func testReport() *domain.Report {
	rep := &domain.Report{
		Meta: domain.Meta{
			RunID:      "run-1",
			StartedAt:  time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2025, 8, 18, 12, 0, 1, 0, time.UTC),
			Hostname:   "host-a",
			Tool:       "api-connectivity-troubleshooter",
			Version:    "1.0.0",
		},
		Errors: []string{"DB error: unsupported db driver \"oracle\""},
	}
	rep.DNS.Put(domain.Resolution{
		Hostname:  "api.internal",
		Resolved:  true,
		Addresses: []string{"10.0.0.9"},
		CNAME:     []string{},
		LatencyMS: 3,
	})
	code := 200
	preview := `{"status":"ok"}`
	rep.API.Single = &domain.APIResult{
		Name: "single-request", URL: "https://api.internal/health", Method: "GET",
		StatusCode: &code, LatencyMS: 21, Passed: true, BodyPreview: &preview,
	}
	return rep
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	if err := WriteJSON(path, testReport()); err != nil {
		t.Fatalf("write json: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got domain.Report
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("report file not valid json: %v", err)
	}
	if got.Meta.RunID != "run-1" || got.DNS.Len() != 1 || got.API.Single == nil {
		t.Fatalf("report content lost: %+v", got)
	}
	if len(got.Errors) != 1 {
		t.Fatalf("errors lost: %v", got.Errors)
	}
	if !bytes.HasSuffix(raw, []byte("\n")) {
		t.Fatal("want trailing newline")
	}
}

func TestWriteCSV(t *testing.T) {
	rep := testReport()
	path := filepath.Join(t.TempDir(), "nested", "dir", "report.csv")
	if err := WriteCSV(path, rep.Flatten()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("want header plus 2 rows, got %d", len(records))
	}
	wantHeader := []string{"component", "name", "status", "details", "latency_ms"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("header column %d: want %q, got %q", i, col, records[0][i])
		}
	}
	if records[1][0] != "dns" || records[1][1] != "api.internal" || records[1][2] != "ok" {
		t.Fatalf("dns row mismatch: %v", records[1])
	}
	if records[2][0] != "api" || records[2][4] != "21" {
		t.Fatalf("api row mismatch: %v", records[2])
	}

	// the details cell survives quoting and parses as json
	var details map[string]any
	if err := json.Unmarshal([]byte(records[2][3]), &details); err != nil {
		t.Fatalf("details cell not json: %v (%q)", err, records[2][3])
	}
	if details["url"] != "https://api.internal/health" {
		t.Fatalf("details lost: %v", details)
	}
}

func TestWriteCSV_EmptyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := WriteCSV(path, nil); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "component,name,status,details,latency_ms" {
		t.Fatalf("want header-only file, got %q", raw)
	}
}

func TestWriteJSON_BadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// parent path exists as a regular file
	if err := WriteJSON(filepath.Join(blocker, "report.json"), testReport()); err == nil {
		t.Fatal("expected error when the directory cannot be created")
	}
}

func TestWriteSummary(t *testing.T) {
	color.NoColor = true
	rep := testReport()
	var buf bytes.Buffer
	WriteSummary(&buf, rep, rep.Flatten(), "report.json", "report.csv")

	out := buf.String()
	if !strings.Contains(out, "=== API Connectivity Troubleshooter ===") {
		t.Fatalf("missing banner:\n%s", out)
	}
	if !strings.Contains(out, "[DNS]") || !strings.Contains(out, "api.internal") {
		t.Fatalf("missing dns row:\n%s", out)
	}
	if !strings.Contains(out, "[API]") || !strings.Contains(out, "OK") {
		t.Fatalf("missing api row:\n%s", out)
	}
	if !strings.Contains(out, "Errors captured:") || !strings.Contains(out, "DB error:") {
		t.Fatalf("missing errors block:\n%s", out)
	}
	if !strings.Contains(out, "Saved: report.json and report.csv") {
		t.Fatalf("missing save line:\n%s", out)
	}
}

func TestWriteSummary_NoErrorsBlock(t *testing.T) {
	color.NoColor = true
	rep := testReport()
	rep.Errors = []string{}
	var buf bytes.Buffer
	WriteSummary(&buf, rep, rep.Flatten(), "a.json", "b.csv")
	if strings.Contains(buf.String(), "Errors captured:") {
		t.Fatalf("errors block must be omitted when empty:\n%s", buf.String())
	}
}
