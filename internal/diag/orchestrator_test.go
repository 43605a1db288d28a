package diag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"conncheck/internal/domain"
	"conncheck/internal/plan"
	"conncheck/internal/probe"
)

type fakeResolver struct {
	section    domain.DNSSection
	err        error
	calls      int
	gotHosts   []string
	gotTimeout time.Duration
}

func (f *fakeResolver) Resolve(ctx context.Context, hostnames []string, timeout time.Duration) (domain.DNSSection, error) {
	f.calls++
	f.gotHosts = hostnames
	f.gotTimeout = timeout
	return f.section, f.err
}

type fakeHTTP struct {
	result  domain.APIResult
	calls   int
	gotSpec probe.RequestSpec
}

func (f *fakeHTTP) Do(ctx context.Context, spec probe.RequestSpec) domain.APIResult {
	f.calls++
	f.gotSpec = spec
	return f.result
}

type fakeRunner struct {
	result        *domain.CollectionResult
	err           error
	calls         int
	gotCollection string
	gotEnv        string
}

func (f *fakeRunner) Run(ctx context.Context, collectionPath, envPath string) (*domain.CollectionResult, error) {
	f.calls++
	f.gotCollection = collectionPath
	f.gotEnv = envPath
	return f.result, f.err
}

type fakeDB struct {
	result  domain.DBResult
	calls   int
	gotSpec probe.QuerySpec
}

func (f *fakeDB) Verify(ctx context.Context, spec probe.QuerySpec) domain.DBResult {
	f.calls++
	f.gotSpec = spec
	return f.result
}

func testOrchestrator(r *fakeResolver, h *fakeHTTP, c *fakeRunner, d *fakeDB) *Orchestrator {
	return &Orchestrator{
		Logger:      zap.NewNop(),
		Resolver:    r,
		HTTP:        h,
		Collections: c,
		DB:          d,
	}
}

func TestRun_EmptyPlan(t *testing.T) {
	r, h, c, d := &fakeResolver{}, &fakeHTTP{}, &fakeRunner{}, &fakeDB{}
	rep := testOrchestrator(r, h, c, d).Run(context.Background(), &plan.Plan{}, Overrides{})

	if r.calls+h.calls+c.calls+d.calls != 0 {
		t.Fatalf("no section should run for an empty plan: %d %d %d %d", r.calls, h.calls, c.calls, d.calls)
	}
	if len(rep.Errors) != 0 {
		t.Fatalf("want no errors, got %v", rep.Errors)
	}
	if rep.DNS.Len() != 0 || !rep.API.Empty() || !rep.DB.Empty() {
		t.Fatalf("want empty sections, got %+v", rep)
	}
	if rep.Meta.RunID == "" || rep.Meta.Hostname == "" {
		t.Fatalf("meta must be stamped, got %+v", rep.Meta)
	}
	if rep.Meta.Tool != ToolName || rep.Meta.Version != ToolVersion {
		t.Fatalf("tool identity lost: %+v", rep.Meta)
	}
	if rep.Meta.FinishedAt.Before(rep.Meta.StartedAt) {
		t.Fatalf("finished before started: %+v", rep.Meta)
	}
	if rep.Meta.StartedAt.Location() != time.UTC {
		t.Fatalf("timestamps must be utc, got %v", rep.Meta.StartedAt.Location())
	}
	if len(rep.Flatten()) != 0 {
		t.Fatalf("empty report must flatten to no rows")
	}
}

func TestRun_SectionFailureIsolated(t *testing.T) {
	r := &fakeResolver{err: errors.New("resolver config: open /etc/resolv.conf: permission denied")}
	h := &fakeHTTP{result: domain.APIResult{Name: "single-request", Passed: true}}
	d := &fakeDB{result: domain.DBResult{Name: "mysql-check", RowCount: 1, Passed: true}}
	p := &plan.Plan{
		DNS: plan.DNSPlan{Hostnames: []string{"db.internal"}},
		API: plan.APIPlan{URL: "https://api.internal/health"},
		DB:  plan.DBPlan{Query: "SELECT 1"},
	}

	rep := testOrchestrator(r, h, &fakeRunner{}, d).Run(context.Background(), p, Overrides{})

	if len(rep.Errors) != 1 || !strings.HasPrefix(rep.Errors[0], "DNS error: ") {
		t.Fatalf("want one prefixed dns error, got %v", rep.Errors)
	}
	if h.calls != 1 || d.calls != 1 {
		t.Fatalf("siblings must still run: http=%d db=%d", h.calls, d.calls)
	}
	if rep.DNS.Len() != 0 {
		t.Fatalf("failed section must stay empty, got %+v", rep.DNS)
	}
	if rep.API.Single == nil || rep.DB.Result == nil {
		t.Fatalf("sibling results lost: %+v", rep)
	}
}

func TestRun_ErrorsKeepSectionOrder(t *testing.T) {
	r := &fakeResolver{err: errors.New("dns down")}
	c := &fakeRunner{err: errors.New("collection unreadable")}
	d := &fakeDB{result: domain.DBResult{Name: "db", Passed: true, RowCount: 1}}
	p := &plan.Plan{
		DNS: plan.DNSPlan{Hostnames: []string{"x"}},
		API: plan.APIPlan{PostmanCollection: "c.json"},
		DB:  plan.DBPlan{Query: "SELECT 1"},
	}

	rep := testOrchestrator(r, &fakeHTTP{}, c, d).Run(context.Background(), p, Overrides{})

	if len(rep.Errors) != 2 {
		t.Fatalf("want 2 errors, got %v", rep.Errors)
	}
	if rep.Errors[0] != "DNS error: dns down" || rep.Errors[1] != "API error: collection unreadable" {
		t.Fatalf("wrong order or prefixes: %v", rep.Errors)
	}
	if !rep.API.Empty() {
		t.Fatalf("failed api section must stay empty, got %+v", rep.API)
	}
	if rep.DB.Result == nil {
		t.Fatal("db must still run after api failure")
	}
}

func TestRun_CollectionTakesPrecedence(t *testing.T) {
	h := &fakeHTTP{}
	c := &fakeRunner{result: &domain.CollectionResult{Passed: true, Items: []domain.APIResult{{Name: "one", Passed: true}}}}
	p := &plan.Plan{API: plan.APIPlan{
		URL:               "https://ignored.internal",
		PostmanCollection: "smoke.json",
	}}

	rep := testOrchestrator(&fakeResolver{}, h, c, &fakeDB{}).Run(context.Background(), p, Overrides{})

	if h.calls != 0 {
		t.Fatalf("single request must not run when a collection is set, calls=%d", h.calls)
	}
	if c.calls != 1 || c.gotCollection != "smoke.json" {
		t.Fatalf("collection not used: calls=%d path=%q", c.calls, c.gotCollection)
	}
	if rep.API.Collection == nil {
		t.Fatalf("collection result lost: %+v", rep.API)
	}
}

func TestRun_OverridesBeatPlanPaths(t *testing.T) {
	c := &fakeRunner{result: &domain.CollectionResult{}}
	p := &plan.Plan{API: plan.APIPlan{
		PostmanCollection: "plan.json",
		PostmanEnv:        "plan-env.json",
	}}

	testOrchestrator(&fakeResolver{}, &fakeHTTP{}, c, &fakeDB{}).
		Run(context.Background(), p, Overrides{Collection: "cli.json", Environment: "cli-env.json"})
	if c.gotCollection != "cli.json" || c.gotEnv != "cli-env.json" {
		t.Fatalf("overrides must win: %q %q", c.gotCollection, c.gotEnv)
	}

	// each path falls back independently
	testOrchestrator(&fakeResolver{}, &fakeHTTP{}, c, &fakeDB{}).
		Run(context.Background(), p, Overrides{Collection: "cli.json"})
	if c.gotCollection != "cli.json" || c.gotEnv != "plan-env.json" {
		t.Fatalf("env must fall back to the plan: %q %q", c.gotCollection, c.gotEnv)
	}
}

func TestRun_SingleRequestSpec(t *testing.T) {
	verify := false
	h := &fakeHTTP{result: domain.APIResult{Name: "orders-health", Passed: true}}
	p := &plan.Plan{API: plan.APIPlan{
		Name:           "orders-health",
		Method:         "post",
		URL:            "https://api.internal/health",
		Headers:        map[string]string{"Authorization": "Bearer abc"},
		Params:         map[string]string{"verbose": "1"},
		JSONBody:       map[string]any{"ping": true},
		Timeout:        4,
		ExpectedStatus: 204,
		VerifyTLS:      &verify,
	}}

	rep := testOrchestrator(&fakeResolver{}, h, &fakeRunner{}, &fakeDB{}).Run(context.Background(), p, Overrides{})

	if h.calls != 1 {
		t.Fatalf("want one probe call, got %d", h.calls)
	}
	spec := h.gotSpec
	if spec.URL != "https://api.internal/health" || spec.Method != "post" {
		t.Fatalf("spec url/method mismatch: %+v", spec)
	}
	if spec.Timeout != 4*time.Second || spec.ExpectedStatus != 204 {
		t.Fatalf("timeout/status mismatch: %+v", spec)
	}
	if !spec.InsecureTLS {
		t.Fatal("verify_tls=false must disable verification")
	}
	if spec.Headers["Authorization"] != "Bearer abc" || spec.Params["verbose"] != "1" {
		t.Fatalf("headers/params lost: %+v", spec)
	}
	if rep.API.Single == nil || rep.API.Single.Name != "orders-health" {
		t.Fatalf("single result lost: %+v", rep.API)
	}
}

func TestRun_SingleRequestWithoutURL(t *testing.T) {
	h := &fakeHTTP{}
	p := &plan.Plan{API: plan.APIPlan{Name: "broken"}}

	rep := testOrchestrator(&fakeResolver{}, h, &fakeRunner{}, &fakeDB{}).Run(context.Background(), p, Overrides{})

	if h.calls != 0 {
		t.Fatal("probe must not run without a url")
	}
	if len(rep.Errors) != 1 || rep.Errors[0] != "API error: api url required" {
		t.Fatalf("want section error, got %v", rep.Errors)
	}
	if !rep.API.Empty() {
		t.Fatalf("api section must stay empty, got %+v", rep.API)
	}
}

func TestRun_RetryOnlyWhenRequested(t *testing.T) {
	h := &fakeHTTP{result: domain.APIResult{Name: "single-request", Passed: false, Error: "refused"}}
	p := &plan.Plan{API: plan.APIPlan{URL: "https://api.internal", RetryAttempts: 3}}

	rep := testOrchestrator(&fakeResolver{}, h, &fakeRunner{}, &fakeDB{}).Run(context.Background(), p, Overrides{})
	if h.calls != 3 {
		t.Fatalf("want 3 attempts when the plan opts in, got %d", h.calls)
	}
	if rep.API.Single == nil || !strings.Contains(rep.API.Single.Error, "after retries") {
		t.Fatalf("want annotated retry failure, got %+v", rep.API.Single)
	}

	h2 := &fakeHTTP{result: domain.APIResult{Passed: false, Error: "refused"}}
	p2 := &plan.Plan{API: plan.APIPlan{URL: "https://api.internal"}}
	testOrchestrator(&fakeResolver{}, h2, &fakeRunner{}, &fakeDB{}).Run(context.Background(), p2, Overrides{})
	if h2.calls != 1 {
		t.Fatalf("checks are single-shot by default, got %d attempts", h2.calls)
	}
}

func TestRun_DNSTimeoutAndHostsPassthrough(t *testing.T) {
	r := &fakeResolver{}
	p := &plan.Plan{DNS: plan.DNSPlan{Hostnames: []string{"a", "b"}, Timeout: 1.5}}

	testOrchestrator(r, &fakeHTTP{}, &fakeRunner{}, &fakeDB{}).Run(context.Background(), p, Overrides{})
	if len(r.gotHosts) != 2 || r.gotTimeout != 1500*time.Millisecond {
		t.Fatalf("resolver inputs lost: hosts=%v timeout=%v", r.gotHosts, r.gotTimeout)
	}

	r2 := &fakeResolver{}
	testOrchestrator(r2, &fakeHTTP{}, &fakeRunner{}, &fakeDB{}).
		Run(context.Background(), &plan.Plan{DNS: plan.DNSPlan{Hostnames: []string{"a"}}}, Overrides{})
	if r2.gotTimeout != 3*time.Second {
		t.Fatalf("want 3s default dns timeout, got %v", r2.gotTimeout)
	}
}

func TestRun_DBSpecPassthrough(t *testing.T) {
	two := 2
	d := &fakeDB{result: domain.DBResult{Name: "orders-db", RowCount: 5, Passed: true}}
	p := &plan.Plan{DB: plan.DBPlan{
		Name:          "orders-db",
		Driver:        "postgres",
		Host:          "db.internal",
		Port:          5433,
		User:          "svc",
		Password:      "pw",
		Database:      "appdb",
		Query:         "SELECT id FROM orders",
		ExpectRowsMin: &two,
	}}

	rep := testOrchestrator(&fakeResolver{}, &fakeHTTP{}, &fakeRunner{}, d).Run(context.Background(), p, Overrides{})

	if d.calls != 1 {
		t.Fatalf("want one db call, got %d", d.calls)
	}
	if d.gotSpec.Driver != "postgres" || d.gotSpec.Port != 5433 || d.gotSpec.Query != "SELECT id FROM orders" {
		t.Fatalf("query spec lost: %+v", d.gotSpec)
	}
	if d.gotSpec.ExpectRowsMin == nil || *d.gotSpec.ExpectRowsMin != 2 {
		t.Fatalf("threshold lost: %v", d.gotSpec.ExpectRowsMin)
	}
	if rep.DB.Result == nil || rep.DB.Result.RowCount != 5 {
		t.Fatalf("db result lost: %+v", rep.DB)
	}
}

func TestRun_RowsAcrossSections(t *testing.T) {
	r := &fakeResolver{}
	r.section.Put(domain.Resolution{Hostname: "one.internal", Resolved: true, Addresses: []string{"10.0.0.1"}})
	r.section.Put(domain.Resolution{Hostname: "two.internal"})
	c := &fakeRunner{result: &domain.CollectionResult{Items: []domain.APIResult{
		{Name: "a", Passed: true},
		{Name: "b", Passed: false},
	}}}
	d := &fakeDB{result: domain.DBResult{Name: "db", Passed: true, RowCount: 1}}
	p := &plan.Plan{
		DNS: plan.DNSPlan{Hostnames: []string{"one.internal", "two.internal"}},
		API: plan.APIPlan{PostmanCollection: "c.json"},
		DB:  plan.DBPlan{Query: "SELECT 1"},
	}

	rep := testOrchestrator(r, &fakeHTTP{}, c, d).Run(context.Background(), p, Overrides{})

	rows := rep.Flatten()
	if len(rows) != 5 {
		t.Fatalf("want 5 rows, got %d", len(rows))
	}
	wantNames := []string{"one.internal", "two.internal", "a", "b", "db"}
	for i, name := range wantNames {
		if rows[i].Name != name {
			t.Fatalf("row %d: want %q, got %q", i, name, rows[i].Name)
		}
	}
	if rep.Failures() != 2 {
		t.Fatalf("want 2 failures (unresolved host, failed item), got %d", rep.Failures())
	}
}
