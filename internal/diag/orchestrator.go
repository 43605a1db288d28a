package diag

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"conncheck/internal/collection"
	"conncheck/internal/domain"
	"conncheck/internal/plan"
	"conncheck/internal/probe"
)

// Tool identity stamped into every report.
const (
	ToolName    = "api-connectivity-troubleshooter"
	ToolVersion = "1.0.0"
)

const defaultDNSTimeoutSeconds = 3.0

// HostResolver answers the dns section.
type HostResolver interface {
	Resolve(ctx context.Context, hostnames []string, timeout time.Duration) (domain.DNSSection, error)
}

// CollectionRunner answers the api section's collection mode.
type CollectionRunner interface {
	Run(ctx context.Context, collectionPath, envPath string) (*domain.CollectionResult, error)
}

// QueryProber answers the db section.
type QueryProber interface {
	Verify(ctx context.Context, spec probe.QuerySpec) domain.DBResult
}

// Overrides carry command-line paths that take precedence over the plan.
type Overrides struct {
	Collection  string
	Environment string
}

// Orchestrator runs the dns, api and db sections in order. A section that
// cannot run at all contributes a prefixed entry to the report's errors
// list; its siblings still run.
type Orchestrator struct {
	Logger      *zap.Logger
	Resolver    HostResolver
	HTTP        probe.Prober
	Collections CollectionRunner
	DB          QueryProber
}

// New wires the orchestrator with the real probes.
func New(logger *zap.Logger) *Orchestrator {
	httpProbe := probe.NewHTTPProbe()
	return &Orchestrator{
		Logger:      logger,
		Resolver:    probe.NewResolver(),
		HTTP:        httpProbe,
		Collections: collection.NewRunner(httpProbe),
		DB:          probe.NewDBProbe(),
	}
}

// Run executes every configured section sequentially and assembles the
// report. Check failures are data inside the report, never errors.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, ov Overrides) *domain.Report {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	rep := &domain.Report{
		Meta: domain.Meta{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Hostname:  hostname,
			Tool:      ToolName,
			Version:   ToolVersion,
		},
		Errors: []string{},
	}

	if section, err := o.runDNS(ctx, p.DNS); err != nil {
		rep.Errors = append(rep.Errors, "DNS error: "+err.Error())
		o.Logger.Warn("dns_section_failed", zap.Error(err))
	} else {
		rep.DNS = section
	}

	if section, err := o.runAPI(ctx, p.API, ov); err != nil {
		rep.Errors = append(rep.Errors, "API error: "+err.Error())
		o.Logger.Warn("api_section_failed", zap.Error(err))
	} else {
		rep.API = section
	}

	if section, err := o.runDB(ctx, p.DB); err != nil {
		rep.Errors = append(rep.Errors, "DB error: "+err.Error())
		o.Logger.Warn("db_section_failed", zap.Error(err))
	} else {
		rep.DB = section
	}

	rep.Meta.FinishedAt = time.Now().UTC()
	o.Logger.Info("run_complete",
		zap.String("run_id", rep.Meta.RunID),
		zap.Int("errors", len(rep.Errors)),
		zap.Int("failures", rep.Failures()),
	)
	return rep
}

func (o *Orchestrator) runDNS(ctx context.Context, cfg plan.DNSPlan) (domain.DNSSection, error) {
	if len(cfg.Hostnames) == 0 {
		return domain.DNSSection{}, nil
	}
	section, err := o.Resolver.Resolve(ctx, cfg.Hostnames, secondsToDuration(cfg.Timeout, defaultDNSTimeoutSeconds))
	if err != nil {
		return domain.DNSSection{}, err
	}
	for _, e := range section.Entries() {
		o.Logger.Info("dns_resolved",
			zap.String("hostname", e.Hostname),
			zap.Bool("resolved", e.Resolved),
			zap.Int("addresses", len(e.Addresses)),
			zap.Int64("latency_ms", e.LatencyMS),
		)
	}
	return section, nil
}

func (o *Orchestrator) runAPI(ctx context.Context, cfg plan.APIPlan, ov Overrides) (domain.APISection, error) {
	// a collection, from either source, takes precedence over the single
	// request fields
	collectionPath := ov.Collection
	if collectionPath == "" {
		collectionPath = cfg.PostmanCollection
	}
	if collectionPath != "" {
		envPath := ov.Environment
		if envPath == "" {
			envPath = cfg.PostmanEnv
		}
		result, err := o.Collections.Run(ctx, collectionPath, envPath)
		if err != nil {
			return domain.APISection{}, err
		}
		o.Logger.Info("api_collection_done",
			zap.Bool("passed", result.Passed),
			zap.Int("items", len(result.Items)),
		)
		return domain.APISection{Collection: result}, nil
	}

	if cfg.Empty() {
		return domain.APISection{}, nil
	}
	if cfg.URL == "" {
		return domain.APISection{}, errors.New("api url required")
	}

	spec := probe.RequestSpec{
		Name:           cfg.Name,
		Method:         cfg.Method,
		URL:            cfg.URL,
		Headers:        cfg.Headers,
		Params:         cfg.Params,
		JSONBody:       cfg.JSONBody,
		RawBody:        cfg.Data,
		Timeout:        secondsToDuration(cfg.Timeout, 0),
		ExpectedStatus: cfg.ExpectedStatus,
		InsecureTLS:    cfg.VerifyTLS != nil && !*cfg.VerifyTLS,
	}

	prober := o.HTTP
	if cfg.RetryAttempts > 1 {
		prober = &probe.Retry{
			Inner:    o.HTTP,
			Attempts: cfg.RetryAttempts,
			Backoff:  time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		}
	}
	result := prober.Do(ctx, spec)
	o.Logger.Info("api_check_done",
		zap.String("name", result.Name),
		zap.Bool("passed", result.Passed),
	)
	return domain.APISection{Single: &result}, nil
}

func (o *Orchestrator) runDB(ctx context.Context, cfg plan.DBPlan) (domain.DBSection, error) {
	if cfg.Empty() {
		return domain.DBSection{}, nil
	}
	result := o.DB.Verify(ctx, probe.QuerySpec{
		Name:          cfg.Name,
		Driver:        cfg.Driver,
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Query:         cfg.Query,
		ExpectRowsMin: cfg.ExpectRowsMin,
	})
	o.Logger.Info("db_check_done",
		zap.String("name", result.Name),
		zap.Bool("passed", result.Passed),
		zap.Int("rows", result.RowCount),
	)
	return domain.DBSection{Result: &result}, nil
}

// secondsToDuration converts the plan's fractional seconds, falling back
// when unset.
func secondsToDuration(seconds, fallback float64) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds * float64(time.Second))
}
