package domain

// Resolution is the outcome of resolving one hostname.
type Resolution struct {
	Hostname  string   `json:"hostname"`
	Resolved  bool     `json:"resolved"`
	Addresses []string `json:"addresses"`
	CNAME     []string `json:"cname"`
	LatencyMS int64    `json:"latency_ms"`
	Error     string   `json:"error,omitempty"`
}

// APIResult is the outcome of one HTTP check, either the single configured
// request or one collection item.
type APIResult struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Method      string  `json:"method"`
	StatusCode  *int    `json:"status_code,omitempty"` // pointer to allow nil
	LatencyMS   int64   `json:"latency_ms"`
	Passed      bool    `json:"passed"`
	Error       string  `json:"error,omitempty"`
	BodyPreview *string `json:"body_preview,omitempty"` // pointer to allow nil
}

// DBResult is the outcome of one database query verification.
type DBResult struct {
	Name      string         `json:"name"`
	RowCount  int            `json:"rowcount"`
	Sample    map[string]any `json:"sample,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
	Passed    bool           `json:"passed"`
	Error     string         `json:"error,omitempty"`
}

// CollectionResult aggregates the items of one collection run. Passed is
// true only when the collection is non-empty and every item passed.
type CollectionResult struct {
	Passed bool        `json:"passed"`
	Items  []APIResult `json:"items"`
}
