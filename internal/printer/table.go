package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/taskhive/taskhive/internal/server/apiv1"
)

// TablePrinter prints task and runner information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []apiv1.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPROGRESS\tCREATED")

	// Print rows.
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n",
			task.ID,
			truncate(task.Title, 50),
			task.Status,
			task.Progress,
			TimeAgo(task.CreatedAt),
		)
	}

	return nil
}

// PrintRunnerList prints runners in a table format.
func (t *TablePrinter) PrintRunnerList(runners []apiv1.Runner) error {
	if len(runners) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tNAME\tONLINE\tDISABLED\tLAST SEEN")

	// Print rows.
	for _, r := range runners {
		online := "no"
		if v, ok := r.Capabilities["online"].(bool); ok && v {
			online = "yes"
		}
		disabled := "no"
		if r.Disabled {
			disabled = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, online, disabled, TimeAgo(r.LastSeenAt))
	}

	return nil
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
