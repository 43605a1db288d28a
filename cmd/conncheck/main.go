package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"conncheck/internal/config"
	"conncheck/internal/diag"
	"conncheck/internal/domain"
	"conncheck/internal/httpapi"
	"conncheck/internal/logging"
	"conncheck/internal/metrics"
	"conncheck/internal/notify"
	"conncheck/internal/plan"
	"conncheck/internal/publish"
	"conncheck/internal/report"
	"conncheck/internal/repo"
	"conncheck/internal/repo/memory"
	"conncheck/internal/repo/postgres"
	"conncheck/internal/scheduler"
)

type app struct {
	logger     *zap.Logger
	orch       *diag.Orchestrator
	plan       *plan.Plan
	overrides  diag.Overrides
	notifier   notify.Notifier
	publisher  *publish.Publisher
	outJSON    string
	outCSV     string
	historyDSN string
}

func main() {
	configPath := pflag.String("config", "", "path to the check plan (JSON)")
	postman := pflag.String("postman", "", "Postman collection override")
	envFile := pflag.String("env", "", "Postman environment override")
	outJSON := pflag.String("out-json", "report.json", "where to write the JSON report")
	outCSV := pflag.String("out-csv", "report.csv", "where to write the CSV report")
	serve := pflag.Bool("serve", false, "serve the HTTP API")
	watchEvery := pflag.Duration("watch", 0, "re-run on this interval (0 disables)")
	logDir := pflag.String("log-dir", "", "override the log directory")
	pflag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		pflag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	settings, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *logDir != "" {
		settings.LogDir = *logDir
	}

	logger, err := logging.NewLogger(settings.LogDir, settings.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	checkPlan, err := plan.Load(*configPath)
	if err != nil {
		log.Fatalf("load check plan: %v", err)
	}
	if !checkPlan.DB.Empty() && checkPlan.DB.Password == "" {
		checkPlan.DB.Password = os.Getenv("CONNCHECK_DB_PASSWORD")
	}

	slack := notify.NewSlack(settings.Notify.SlackWebhook)
	var notifier notify.Notifier
	if slack != nil {
		notifier = slack
	}

	var publisher *publish.Publisher
	if len(settings.Publish.Brokers) > 0 {
		publisher = publish.New(settings.Publish.Brokers, settings.Publish.Topic)
		defer publisher.Close()
	}

	a := &app{
		logger:     logger,
		orch:       diag.New(logger),
		plan:       checkPlan,
		overrides:  diag.Overrides{Collection: *postman, Environment: *envFile},
		notifier:   notifier,
		publisher:  publisher,
		outJSON:    *outJSON,
		outCSV:     *outCSV,
		historyDSN: settings.History.DSN,
	}

	interval := *watchEvery
	if interval == 0 {
		interval = settings.WatchInterval()
	}
	addr := ""
	if *serve {
		addr = settings.Serve.Addr
	}

	if addr != "" || interval > 0 {
		a.runServices(addr, interval)
		return
	}

	a.runOnceAndReport(context.Background())
}

// runOnceAndReport is the default mode: one run, files written, summary
// printed. Failed checks land in the report, not in the exit code; only
// unwritable outputs are fatal.
func (a *app) runOnceAndReport(ctx context.Context) {
	rep := a.run(ctx)
	rows := rep.Flatten()

	if err := a.writeOutputs(rep, rows); err != nil {
		a.logger.Error("write_outputs_failed", zap.Error(err))
		log.Fatalf("write outputs: %v", err)
	}
	report.WriteSummary(os.Stdout, rep, rows, a.outJSON, a.outCSV)

	if a.notifier != nil && (rep.Failures() > 0 || len(rep.Errors) > 0) {
		title, text := notify.Summary(rep, rows)
		if err := a.notifier.Send(ctx, title, text); err != nil {
			a.logger.Warn("notify_failed", zap.Error(err))
		}
	}
}

func (a *app) run(ctx context.Context) *domain.Report {
	rep := a.orch.Run(ctx, a.plan, a.overrides)
	a.publish(ctx, rep)
	return rep
}

func (a *app) publish(ctx context.Context, rep *domain.Report) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishReport(ctx, rep); err != nil {
		a.logger.Warn("publish_failed", zap.Error(err))
	}
}

func (a *app) writeOutputs(rep *domain.Report, rows []domain.FlatRow) error {
	var werr error
	werr = multierr.Append(werr, report.WriteJSON(a.outJSON, rep))
	werr = multierr.Append(werr, report.WriteCSV(a.outCSV, rows))
	return werr
}

// runServices runs watch mode and/or the HTTP API until SIGINT/SIGTERM.
// Every run, no matter who triggered it, goes through runAndRecord so
// history, metrics and output files stay consistent.
func (a *app) runServices(addr string, interval time.Duration) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history repo.RunStore
	if a.historyDSN != "" {
		pg, err := postgres.New(ctx, a.historyDSN, a.logger)
		if err != nil {
			a.logger.Error("history_connect_failed", zap.Error(err))
			log.Fatalf("connect run history: %v", err)
		}
		defer pg.Close()
		history = pg
	} else {
		history = memory.New()
	}
	m := metrics.New()

	runAndRecord := func(ctx context.Context) *domain.Report {
		started := time.Now()
		rep := a.orch.Run(ctx, a.plan, a.overrides)
		if err := history.Append(ctx, rep); err != nil {
			a.logger.Warn("history_append_failed", zap.Error(err))
		}
		rows := rep.Flatten()
		for _, row := range rows {
			if row.Status == domain.StatusFail {
				m.IncCheckFailure(string(row.Component))
			}
		}
		m.AddSectionErrors(len(rep.Errors))
		m.ObserveRun(time.Since(started), rep.Meta.FinishedAt)

		if err := a.writeOutputs(rep, rows); err != nil {
			a.logger.Warn("write_outputs_failed", zap.Error(err))
		}
		a.publish(ctx, rep)
		return rep
	}

	var wg sync.WaitGroup

	if interval > 0 {
		w := &scheduler.Watcher{
			Logger:   a.logger,
			Interval: interval,
			RunOnce:  runAndRecord,
			Notifier: a.notifier,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	var srv *http.Server
	if addr != "" {
		api := httpapi.NewServer(a.logger, runAndRecord, history, m)
		srv = &http.Server{Addr: addr, Handler: api.Router()}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("api_listen", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("api_serve_failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting_down")
	if srv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}
	wg.Wait()
}
