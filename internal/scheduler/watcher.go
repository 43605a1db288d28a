package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"conncheck/internal/domain"
	"conncheck/internal/notify"
)

// Watcher re-runs the diagnostic on an interval and notifies when a
// check changes state between passes.
type Watcher struct {
	Logger   *zap.Logger
	Interval time.Duration
	RunOnce  func(ctx context.Context) *domain.Report
	Notifier notify.Notifier

	prev map[string]domain.RowStatus
}

// Transition records one check moving between ok and fail.
type Transition struct {
	Row  domain.FlatRow
	From domain.RowStatus
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.Interval <= 0 {
		w.Logger.Info("watch_disabled")
		return
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	// immediate pass
	w.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("watch_stopped")
			return
		case <-t.C:
			w.pass(ctx)
		}
	}
}

func (w *Watcher) pass(ctx context.Context) {
	rep := w.RunOnce(ctx)
	rows := rep.Flatten()
	transitions := w.detect(rows)

	if len(transitions) > 0 && w.Notifier != nil {
		title, text := transitionMessage(rep, transitions)
		if err := w.Notifier.Send(ctx, title, text); err != nil {
			w.Logger.Warn("notify_failed", zap.Error(err))
		}
	}

	w.Logger.Info("watch_pass",
		zap.String("run_id", rep.Meta.RunID),
		zap.Int("rows", len(rows)),
		zap.Int("transitions", len(transitions)),
	)
}

// detect compares rows with the previous pass. The first pass only
// establishes the baseline; checks that appear or vanish between passes
// never alert on their own.
func (w *Watcher) detect(rows []domain.FlatRow) []Transition {
	next := make(map[string]domain.RowStatus, len(rows))
	for _, row := range rows {
		next[rowKey(row)] = row.Status
	}
	if w.prev == nil {
		w.prev = next
		return nil
	}

	var out []Transition
	for _, row := range rows {
		before, seen := w.prev[rowKey(row)]
		if seen && before != row.Status {
			out = append(out, Transition{Row: row, From: before})
		}
	}
	w.prev = next
	return out
}

func rowKey(row domain.FlatRow) string {
	return string(row.Component) + "/" + row.Name
}

func transitionMessage(rep *domain.Report, transitions []Transition) (string, string) {
	title := "🟢 Checks recovered"
	for _, tr := range transitions {
		if tr.Row.Status == domain.StatusFail {
			title = "🔴 Checks failing"
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Host: %s\n", rep.Meta.Hostname)
	for _, tr := range transitions {
		fmt.Fprintf(&b, "[%s] %s: %s -> %s\n", tr.Row.Component, tr.Row.Name, tr.From, tr.Row.Status)
	}
	return title, b.String()
}
