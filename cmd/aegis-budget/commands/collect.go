package commands

import (
	"context"
	"fmt"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/internal/app"
	"github.com/samijaber1/aegis-budget/internal/report"
)

type collectCommand struct {
	output string
}

// NewCollectCommand returns the collect command.
func NewCollectCommand(app *kingpin.Application) Command {
	c := &collectCommand{}
	cmd := app.Command("collect", "Runs one monitoring tick: evaluates, records history and dispatches alerts.")
	cmd.Flag("output", "Output format.").Short('o').Default(OutputText).EnumVar(&c.output, OutputText, OutputJSON)

	return c
}

func (collectCommand) Name() string { return "collect" }
func (c collectCommand) Run(ctx context.Context, config RootConfig) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	components, err := app.Build(ctx, cfg, nil, config.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	snap, err := components.Monitor.RunOnce(ctx)
	if snap == nil {
		return fmt.Errorf("could not collect: %w", err)
	}
	if err != nil {
		// The snapshot is still valid, history may be incomplete.
		config.Logger.Sugar().Warnf("tick completed with errors: %v", err)
	}

	if c.output == OutputJSON {
		return report.WriteJSON(config.Stdout, snap.Reports)
	}
	return report.WriteText(config.Stdout, components.Definition, cfg.Monitor.LookbackHours, snap.Reports, snap.Recommendation)
}
