// Package cli formats command output and talks to a running kotae server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text", "json" or an empty string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", models.ErrInvalidArgument, s)
	}
}

// WriteAnswer writes an answer and its sources to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Response)
	if len(resp.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, c := range resp.Citations {
			fmt.Fprintf(w, "  [%d] %s, page %d\n      %s\n", i+1, c.DocumentID, c.PageNumber, c.Locator)
		}
	}
	fmt.Fprintf(w, "\n(answered in %dms)\n", resp.QueryTime)
	return nil
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, report *models.StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintln(w, "Index")
	fmt.Fprintf(w, "  Location:   %s\n", report.Index.Location)
	fmt.Fprintf(w, "  Entries:    %d\n", report.Index.Entries)
	fmt.Fprintf(w, "  Documents:  %d\n", report.Index.Documents)
	fmt.Fprintf(w, "  Dimensions: %d\n", report.Index.Dimensions)

	fmt.Fprintln(w, "Catalog")
	for _, status := range []string{models.StatusQueued, models.StatusIngested, models.StatusFailed} {
		fmt.Fprintf(w, "  %-10s  %d\n", status+":", report.Catalog[status])
	}
	fmt.Fprintf(w, "Queue pending: %d\n", report.QueuePending)
	if report.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:    %s\n", humanize.Bytes(uint64(*report.DiskUsageBytes)))
	}

	if len(report.Config) > 0 {
		fmt.Fprintln(w, "Config")
		keys := make([]string, 0, len(report.Config))
		for k := range report.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, report.Config[k])
		}
	}
	return nil
}

// WriteIngestResult writes a one-line ingestion summary, or JSON.
func WriteIngestResult(w io.Writer, result *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	verb := "Merged"
	if result.Created {
		verb = "Created index with"
	}
	fmt.Fprintf(w, "%s %d page(s) from %d document(s); index now holds %d entries\n",
		verb, result.Pages, result.Documents, result.TotalEntries)
	return nil
}

// WriteDocuments lists catalog entries, one per line.
func WriteDocuments(w io.Writer, docs []*models.DocumentRecord, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.DocumentRecord{}
		}
		return writeJSON(w, docs)
	}
	for _, d := range docs {
		line := fmt.Sprintf("%-9s %8s  %3d page(s)  %s", d.Status, humanize.Bytes(uint64(d.SizeBytes)), d.Pages, d.ID)
		if d.Error != "" {
			line += "  (" + utils.Truncate(d.Error, 80) + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
