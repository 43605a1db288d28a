package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Component identifies which section of the report a flat row came from.
type Component string

const (
	ComponentDNS Component = "dns"
	ComponentAPI Component = "api"
	ComponentDB  Component = "db"
)

// RowStatus is the flattened pass/fail marker.
type RowStatus string

const (
	StatusOK   RowStatus = "ok"
	StatusFail RowStatus = "fail"
)

// Meta identifies one diagnostic run.
type Meta struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Hostname   string    `json:"hostname"`
	Tool       string    `json:"tool"`
	Version    string    `json:"version"`
}

// DNSSection holds one Resolution per hostname, keyed by hostname but kept
// in first-seen order. Re-resolving a hostname replaces the earlier entry
// without moving it.
type DNSSection struct {
	entries []Resolution
}

// Put inserts or replaces the entry for r.Hostname.
func (s *DNSSection) Put(r Resolution) {
	for i := range s.entries {
		if s.entries[i].Hostname == r.Hostname {
			s.entries[i] = r
			return
		}
	}
	s.entries = append(s.entries, r)
}

// Get returns the entry for hostname, if present.
func (s *DNSSection) Get(hostname string) (Resolution, bool) {
	for _, e := range s.entries {
		if e.Hostname == hostname {
			return e, true
		}
	}
	return Resolution{}, false
}

// Len returns the number of distinct hostnames.
func (s *DNSSection) Len() int { return len(s.entries) }

// Entries returns the resolutions in insertion order.
func (s *DNSSection) Entries() []Resolution { return s.entries }

// MarshalJSON renders the section as a JSON object keyed by hostname,
// preserving insertion order. An empty section renders as {}.
func (s DNSSection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Hostname)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores the section from its object form, keeping the
// document's key order.
func (s *DNSSection) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dns section: expected object, got %v", tok)
	}
	s.entries = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var r Resolution
		if err := dec.Decode(&r); err != nil {
			return err
		}
		if r.Hostname == "" {
			r.Hostname = key
		}
		s.Put(r)
	}
	_, err = dec.Token()
	return err
}

// APISection is either empty, a single request result, or a collection run.
type APISection struct {
	Single     *APIResult
	Collection *CollectionResult
}

// Empty reports whether the api section did not run.
func (s APISection) Empty() bool { return s.Single == nil && s.Collection == nil }

// MarshalJSON renders the collection form, the single form, or {}.
func (s APISection) MarshalJSON() ([]byte, error) {
	switch {
	case s.Collection != nil:
		return json.Marshal(s.Collection)
	case s.Single != nil:
		return json.Marshal(s.Single)
	default:
		return []byte("{}"), nil
	}
}

// UnmarshalJSON picks the variant by shape: an items key means a collection,
// a name key means a single result, anything else is empty.
func (s *APISection) UnmarshalJSON(data []byte) error {
	var shape struct {
		Items *json.RawMessage `json:"items"`
		Name  *string          `json:"name"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	s.Single, s.Collection = nil, nil
	switch {
	case shape.Items != nil:
		var c CollectionResult
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		s.Collection = &c
	case shape.Name != nil:
		var r APIResult
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		s.Single = &r
	}
	return nil
}

// DBSection is either empty or one query result.
type DBSection struct {
	Result *DBResult
}

// Empty reports whether the db section did not run.
func (s DBSection) Empty() bool { return s.Result == nil }

// MarshalJSON renders the result or {}.
func (s DBSection) MarshalJSON() ([]byte, error) {
	if s.Result == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.Result)
}

// UnmarshalJSON treats any object carrying a name key as a result.
func (s *DBSection) UnmarshalJSON(data []byte) error {
	var shape struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	s.Result = nil
	if shape.Name != nil {
		var r DBResult
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		s.Result = &r
	}
	return nil
}

// Report is the aggregate outcome of one run. Sections a plan leaves out
// stay empty; section-level failures land in Errors while the siblings
// still run.
type Report struct {
	Meta   Meta       `json:"meta"`
	DNS    DNSSection `json:"dns"`
	API    APISection `json:"api"`
	DB     DBSection  `json:"db"`
	Errors []string   `json:"errors"`
}

// FlatRow is the tabular projection of one check outcome.
type FlatRow struct {
	Component Component `json:"component"`
	Name      string    `json:"name"`
	Status    RowStatus `json:"status"`
	Details   string    `json:"details"`
	LatencyMS int64     `json:"latency_ms"`
}

type apiRowDetails struct {
	StatusCode *int   `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
	URL        string `json:"url"`
}

type dbRowDetails struct {
	RowCount int            `json:"rowcount"`
	Sample   map[string]any `json:"sample,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Flatten projects the report into one row per check, in section order:
// dns entries first, then api results, then the db result.
func (r *Report) Flatten() []FlatRow {
	rows := make([]FlatRow, 0, r.DNS.Len()+2)

	for _, e := range r.DNS.Entries() {
		rows = append(rows, FlatRow{
			Component: ComponentDNS,
			Name:      e.Hostname,
			Status:    statusOf(e.Resolved),
			Details:   mustJSON(e),
			LatencyMS: e.LatencyMS,
		})
	}

	switch {
	case r.API.Collection != nil:
		for _, item := range r.API.Collection.Items {
			rows = append(rows, apiRow(item))
		}
	case r.API.Single != nil:
		rows = append(rows, apiRow(*r.API.Single))
	}

	if r.DB.Result != nil {
		d := r.DB.Result
		rows = append(rows, FlatRow{
			Component: ComponentDB,
			Name:      d.Name,
			Status:    statusOf(d.Passed),
			Details:   mustJSON(dbRowDetails{RowCount: d.RowCount, Sample: d.Sample, Error: d.Error}),
			LatencyMS: d.LatencyMS,
		})
	}
	return rows
}

// Failures counts flattened rows that did not pass.
func (r *Report) Failures() int {
	n := 0
	for _, row := range r.Flatten() {
		if row.Status == StatusFail {
			n++
		}
	}
	return n
}

func apiRow(item APIResult) FlatRow {
	return FlatRow{
		Component: ComponentAPI,
		Name:      item.Name,
		Status:    statusOf(item.Passed),
		Details: mustJSON(apiRowDetails{
			StatusCode: item.StatusCode,
			LatencyMS:  item.LatencyMS,
			Error:      item.Error,
			URL:        item.URL,
		}),
		LatencyMS: item.LatencyMS,
	}
}

func statusOf(ok bool) RowStatus {
	if ok {
		return StatusOK
	}
	return StatusFail
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}
