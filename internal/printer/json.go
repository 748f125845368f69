package printer

import (
	"encoding/json"
	"io"

	"github.com/taskhive/taskhive/internal/server/apiv1"
)

// JSONPrinter prints task and runner information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// PrintTaskList prints tasks in JSON format.
func (j *JSONPrinter) PrintTaskList(tasks []apiv1.Task) error {
	return j.print(tasks)
}

// PrintRunnerList prints runners in JSON format.
func (j *JSONPrinter) PrintRunnerList(runners []apiv1.Runner) error {
	return j.print(runners)
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.print(messageOutput{Message: msg})
}

func (j *JSONPrinter) print(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
