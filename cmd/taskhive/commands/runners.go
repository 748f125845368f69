package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/taskhive/taskhive/internal/printer"
	"github.com/taskhive/taskhive/internal/runnerclient"
)

type RunnersCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	serverURL string
	apiKey    string
	format    string
}

// NewRunnersCommand returns the runners command.
func NewRunnersCommand(rootCmd *RootCommand, app *kingpin.Application) *RunnersCommand {
	c := &RunnersCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("runners", "List your registered runners.")
	c.Cmd.Flag("server-url", "Orchestration server base URL.").Default("http://localhost:8080").StringVar(&c.serverURL)
	c.Cmd.Flag("api-key", "API key for the server.").Required().StringVar(&c.apiKey)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RunnersCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunnersCommand) Run(ctx context.Context) error {
	cli, err := runnerclient.NewClient(runnerclient.ClientConfig{
		BaseURL: c.serverURL,
		Token:   c.apiKey,
		Logger:  c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create client: %w", err)
	}

	runners, err := cli.ListRunners(ctx)
	if err != nil {
		return fmt.Errorf("could not list runners: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintRunnerList(runners); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
