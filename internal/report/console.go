package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"conncheck/internal/domain"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

// WriteSummary prints the human-facing run summary: one line per flattened
// row, the captured section errors, and where the report files went.
func WriteSummary(w io.Writer, rep *domain.Report, rows []domain.FlatRow, jsonPath, csvPath string) {
	fmt.Fprintln(w, "=== API Connectivity Troubleshooter ===")
	for _, row := range rows {
		// pad before coloring so escape codes don't break alignment
		status := fmt.Sprintf("%-5s", strings.ToUpper(string(row.Status)))
		if row.Status == domain.StatusOK {
			status = okColor.Sprint(status)
		} else {
			status = failColor.Sprint(status)
		}
		fmt.Fprintf(w, "[%-3s] %-30s %s %d ms\n",
			strings.ToUpper(string(row.Component)), row.Name, status, row.LatencyMS)
	}
	if len(rep.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors captured:")
		for _, e := range rep.Errors {
			fmt.Fprintln(w, " -", e)
		}
	}
	fmt.Fprintf(w, "\nSaved: %s and %s\n", jsonPath, csvPath)
}
