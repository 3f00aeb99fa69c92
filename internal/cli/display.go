// Package cli holds terminal rendering and completion helpers shared by the
// fieldsync commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"fieldsync/backend"
	"fieldsync/backend/dao"
	backendsync "fieldsync/backend/sync"
	"fieldsync/internal/cache"
	fsync "fieldsync/internal/sync"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Table writes rows under a bold header with columns padded to their widest cell
func Table(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := 0
			if i < len(widths) {
				pad = widths[i] - lipgloss.Width(cell)
			}
			parts[i] = cell + strings.Repeat(" ", max(pad, 0))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintln(w, headerStyle.Render(line(headers)))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}

// PrintSyncResult writes the outcome of a sync cycle
func PrintSyncResult(w io.Writer, result *backendsync.SyncResult) {
	if result == nil {
		return
	}
	fmt.Fprintln(w, okStyle.Render("✓ "+result.String()))
	for _, e := range result.Errors {
		fmt.Fprintln(w, errorStyle.Render("  ✗ "+e.Error()))
	}
}

// PrintToasts writes the board's live toasts and its alert
func PrintToasts(w io.Writer, ev fsync.StatusEvent) {
	for _, t := range ev.Toasts {
		style := dimStyle
		switch t.Severity {
		case fsync.SeveritySuccess:
			style = okStyle
		case fsync.SeverityError:
			style = errorStyle
		}
		fmt.Fprintln(w, style.Render(t.Message))
	}
	if ev.Alert != "" {
		fmt.Fprintln(w, errorStyle.Render("! "+ev.Alert))
	}
}

// PrintQueue writes the pending records, one per line
func PrintQueue(w io.Writer, queue []dao.QueueEntry) {
	if len(queue) == 0 {
		fmt.Fprintln(w, "Nothing waiting to sync")
		return
	}
	rows := make([][]string, 0, len(queue))
	for _, e := range queue {
		msg := e.Error
		if msg != "" {
			msg = warnStyle.Render(msg)
		}
		rows = append(rows, []string{string(e.Kind), e.ID, e.Op.Verb(), e.UpdatedAt, msg})
	}
	Table(w, []string{"KIND", "ID", "OP", "UPDATED", "LAST ERROR"}, rows)
}

// StatusReport is what "sync status" shows
type StatusReport struct {
	Server   string                  `json:"server" yaml:"server"`
	Online   bool                    `json:"online" yaml:"online"`
	Login    string                  `json:"login" yaml:"login"`
	Database string                  `json:"database" yaml:"database"`
	Pending  map[backend.Kind]int    `json:"pending" yaml:"pending"`
	LastPull map[backend.Kind]string `json:"last_pull,omitempty" yaml:"last_pull,omitempty"`
	Stats    *backend.DatabaseStats  `json:"stats,omitempty" yaml:"stats,omitempty"`
	LastSync *cache.SyncSummary      `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
}

// PrintStatus writes a StatusReport as text
func PrintStatus(w io.Writer, r StatusReport) {
	conn := okStyle.Render("online")
	if !r.Online {
		conn = warnStyle.Render("offline")
	}
	fmt.Fprintf(w, "Server:    %s (%s)\n", r.Server, conn)
	fmt.Fprintf(w, "Login:     %s\n", r.Login)
	fmt.Fprintf(w, "Database:  %s\n", r.Database)

	total := 0
	for _, n := range r.Pending {
		total += n
	}
	fmt.Fprintf(w, "Pending:   %d\n", total)
	for _, kind := range backend.SyncedKinds() {
		if n := r.Pending[kind]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", kind, n)
		}
	}
	if len(r.LastPull) > 0 {
		fmt.Fprintln(w, "Last pull:")
		for _, kind := range backend.SyncedKinds() {
			if at, ok := r.LastPull[kind]; ok {
				fmt.Fprintf(w, "  %-14s %s\n", kind, at)
			}
		}
	}
	if r.Stats != nil {
		fmt.Fprintln(w, dimStyle.Render(r.Stats.String()))
	}

	if r.LastSync == nil {
		fmt.Fprintln(w, "Last sync: never")
		return
	}
	ago := time.Since(r.LastSync.At).Round(time.Second)
	if r.LastSync.Succeeded() {
		fmt.Fprintf(w, "Last sync: %s ago, pushed %d, pulled %d\n", ago, r.LastSync.Pushed, r.LastSync.Pulled)
	} else {
		fmt.Fprintf(w, "Last sync: %s ago, %s\n", ago, errorStyle.Render(r.LastSync.Error))
	}
	if r.LastSync.Alert != "" {
		fmt.Fprintln(w, errorStyle.Render("! "+r.LastSync.Alert))
	}
}

// Dim renders secondary text
func Dim(s string) string {
	return dimStyle.Render(s)
}

// PrintRecord writes rec as YAML keyed by its JSON field names, in field order
func PrintRecord(w io.Writer, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles kept from the JSON source
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
