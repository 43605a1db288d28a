// Package notify delivers run outcomes to out-of-band channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"conncheck/internal/domain"
)

// Notifier is implemented by anything that can deliver a short message.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans a message out to several notifiers. The first error wins;
// later notifiers still run.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, title, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Summary renders the title and body for a completed run. The body lists
// each failed check plus any section errors.
func Summary(rep *domain.Report, rows []domain.FlatRow) (string, string) {
	failed := rep.Failures()
	title := fmt.Sprintf("🟢 Connectivity check passed (%d checks)", len(rows))
	if failed > 0 || len(rep.Errors) > 0 {
		title = fmt.Sprintf("🔴 Connectivity check FAILED (%d/%d)", failed, len(rows))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Host: %s\nRun: %s\n", rep.Meta.Hostname, rep.Meta.RunID)
	for _, row := range rows {
		if row.Status != domain.StatusFail {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", row.Component, row.Name, row.Details)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return title, b.String()
}
