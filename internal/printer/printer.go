package printer

import "github.com/taskhive/taskhive/internal/server/apiv1"

// Printer knows how to print task and runner information in different formats.
type Printer interface {
	PrintTaskList(tasks []apiv1.Task) error
	PrintRunnerList(runners []apiv1.Runner) error
	PrintMessage(msg string) error
}
