package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conncheck/internal/domain"
)

const (
	defaultHTTPTimeout    = 8 * time.Second
	defaultExpectedStatus = http.StatusOK
	bodyPreviewLimit      = 300
)

// RequestSpec describes one HTTP check.
type RequestSpec struct {
	Name           string
	Method         string // default GET
	URL            string
	Headers        map[string]string
	Params         map[string]string // merged into the query string
	JSONBody       any               // marshaled and sent as application/json when non-nil
	RawBody        string            // sent as-is when JSONBody is nil
	Timeout        time.Duration     // 0 means 8s
	ExpectedStatus int               // 0 means 200
	InsecureTLS    bool              // disables certificate verification
}

// HTTPProbe issues single-shot HTTP requests and classifies the outcome
// against the expected status.
type HTTPProbe struct{}

func NewHTTPProbe() *HTTPProbe { return &HTTPProbe{} }

// Do runs exactly one request. The response body is read in full before the
// latency is captured, so latency covers the whole exchange. A check passes
// only when no error occurred and the status matches the expectation.
func (p *HTTPProbe) Do(ctx context.Context, spec RequestSpec) domain.APIResult {
	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = http.MethodGet
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	expected := spec.ExpectedStatus
	if expected == 0 {
		expected = defaultExpectedStatus
	}
	name := spec.Name
	if name == "" {
		name = "single-request"
	}

	res := domain.APIResult{Name: name, URL: spec.URL, Method: method}

	target, err := buildURL(spec.URL, spec.Params)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	var body io.Reader
	var contentType string
	switch {
	case spec.JSONBody != nil:
		payload, err := json.Marshal(spec.JSONBody)
		if err != nil {
			res.Error = fmt.Sprintf("encode json body: %v", err)
			return res
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case spec.RawBody != "":
		body = strings.NewReader(spec.RawBody)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, method, target, body)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := &http.Client{Timeout: timeout}
	if spec.InsecureTLS {
		tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		defer tr.CloseIdleConnections()
		client.Transport = tr
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		res.LatencyMS = time.Since(start).Milliseconds()
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	code := resp.StatusCode
	res.StatusCode = &code
	preview := shortBody(string(raw))
	res.BodyPreview = &preview
	res.Passed = code == expected
	return res
}

func buildURL(raw string, params map[string]string) (string, error) {
	if raw == "" {
		return "", errors.New("url required")
	}
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func shortBody(text string) string {
	runes := []rune(text)
	if len(runes) <= bodyPreviewLimit {
		return text
	}
	return string(runes[:bodyPreviewLimit]) + "..."
}
