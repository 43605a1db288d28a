package plan

import (
	"encoding/json"
	"fmt"
	"os"
)

// Plan is the check plan document driving one diagnostic run. Every section
// is optional; an absent section is simply skipped.
type Plan struct {
	DNS DNSPlan `json:"dns"`
	API APIPlan `json:"api"`
	DB  DBPlan  `json:"db"`
}

// DNSPlan lists the hostnames to resolve.
type DNSPlan struct {
	Hostnames []string `json:"hostnames"`
	Timeout   float64  `json:"timeout"` // seconds, 0 means default
}

// APIPlan describes the single HTTP check, or points at a collection.
// A configured collection takes precedence over the single request fields.
type APIPlan struct {
	Name           string            `json:"name"`
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers"`
	Params         map[string]string `json:"params"`
	JSONBody       any               `json:"json"`
	Data           string            `json:"data"`
	Timeout        float64           `json:"timeout"` // seconds, 0 means default
	ExpectedStatus int               `json:"expected_status"`
	VerifyTLS      *bool             `json:"verify_tls"` // pointer to allow nil, nil means verify

	PostmanCollection string `json:"postman_collection"`
	PostmanEnv        string `json:"postman_env"`

	// Retries are off unless the plan asks for them.
	RetryAttempts  int `json:"retry_attempts"`
	RetryBackoffMS int `json:"retry_backoff_ms"`
}

// DBPlan describes the database query verification.
type DBPlan struct {
	Name          string `json:"name"`
	Driver        string `json:"driver"` // mysql (default) or postgres
	Host          string `json:"host"`
	Port          int    `json:"port"`
	User          string `json:"user"`
	Password      string `json:"password"`
	Database      string `json:"database"`
	Query         string `json:"query"`
	ExpectRowsMin *int   `json:"expect_rows_min"` // pointer to allow nil, nil means 1
}

// Load reads and parses the plan document. Only an unreadable file or
// malformed JSON is an error here; whether a section is runnable is decided
// at run time.
func Load(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return &p, nil
}

// Empty reports whether no api check is configured at all.
func (a APIPlan) Empty() bool {
	return a.Name == "" && a.Method == "" && a.URL == "" &&
		len(a.Headers) == 0 && len(a.Params) == 0 &&
		a.JSONBody == nil && a.Data == "" &&
		a.Timeout == 0 && a.ExpectedStatus == 0 && a.VerifyTLS == nil &&
		a.PostmanCollection == "" && a.PostmanEnv == "" &&
		a.RetryAttempts == 0 && a.RetryBackoffMS == 0
}

// Empty reports whether no db check is configured at all.
func (d DBPlan) Empty() bool {
	return d.Name == "" && d.Driver == "" && d.Host == "" && d.Port == 0 &&
		d.User == "" && d.Password == "" && d.Database == "" &&
		d.Query == "" && d.ExpectRowsMin == nil
}
