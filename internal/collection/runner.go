package collection

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"conncheck/internal/domain"
	"conncheck/internal/probe"
)

// Collection items run with fixed expectations: 200 within 10s.
const (
	itemTimeout        = 10 * time.Second
	itemExpectedStatus = 200
)

// Runner expands a collection into sequential probe invocations.
type Runner struct {
	Prober probe.Prober
}

func NewRunner(p probe.Prober) *Runner { return &Runner{Prober: p} }

// Run loads the collection and optional environment, then executes every
// item in declaration order. Load failures surface as returned errors;
// individual request failures stay inside their item result.
func (r *Runner) Run(ctx context.Context, collectionPath, envPath string) (*domain.CollectionResult, error) {
	doc, err := LoadDocument(collectionPath)
	if err != nil {
		return nil, err
	}
	env, err := LoadEnvironment(envPath)
	if err != nil {
		return nil, err
	}

	out := &domain.CollectionResult{Items: []domain.APIResult{}}
	for _, item := range doc.Items {
		out.Items = append(out.Items, r.Prober.Do(ctx, buildSpec(item, env)))
	}

	passed := len(out.Items) > 0
	for _, item := range out.Items {
		if !item.Passed {
			passed = false
			break
		}
	}
	out.Passed = passed
	return out, nil
}

func buildSpec(item Item, env Environment) probe.RequestSpec {
	name := item.Name
	if name == "" {
		name = "request"
	}
	req := item.Request
	if req == nil {
		req = &Request{}
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}

	spec := probe.RequestSpec{
		Name:           name,
		Method:         method,
		URL:            env.Substitute(expandURL(req.URL)),
		Timeout:        itemTimeout,
		ExpectedStatus: itemExpectedStatus,
	}

	if len(req.Header) > 0 {
		headers := make(map[string]string, len(req.Header))
		for _, h := range req.Header {
			if h.Key == "" {
				continue
			}
			headers[h.Key] = env.Substitute(h.Value)
		}
		spec.Headers = headers
	}

	if req.Body != nil && req.Body.Mode == "raw" && req.Body.Raw != "" {
		raw := env.Substitute(req.Body.Raw)
		// A raw payload is only sent when it parses as JSON; anything
		// else is dropped rather than sent as text.
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed != nil {
			spec.JSONBody = json.RawMessage(raw)
		}
	}
	return spec
}

// expandURL turns either URL form into a plain string. The structured form
// prefers its raw field and otherwise synthesizes protocol://host/path?query
// with https as the default protocol.
func expandURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts urlParts
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	if parts.Raw != "" {
		return parts.Raw
	}
	protocol := parts.Protocol
	if protocol == "" {
		protocol = "https"
	}
	target := protocol + "://" + strings.Join(parts.Host, ".") + "/" + strings.Join(parts.Path, "/")
	if len(parts.Query) > 0 {
		pairs := make([]string, 0, len(parts.Query))
		for _, q := range parts.Query {
			pairs = append(pairs, q.Key+"="+q.Value)
		}
		target += "?" + strings.Join(pairs, "&")
	}
	return target
}
