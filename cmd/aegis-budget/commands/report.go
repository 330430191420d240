package commands

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/internal/app"
	"github.com/samijaber1/aegis-budget/internal/policy"
	"github.com/samijaber1/aegis-budget/internal/report"
)

type reportCommand struct {
	lookbackHours int
	output        string
}

// NewReportCommand returns the report command.
func NewReportCommand(app *kingpin.Application) Command {
	c := &reportCommand{}
	cmd := app.Command("report", "Evaluates every window once and prints the burn rate report.")
	cmd.Flag("lookback-hours", "Look-back horizon in hours; longer catalog windows are skipped.").Default("24").IntVar(&c.lookbackHours)
	cmd.Flag("output", "Output format.").Short('o').Default(OutputText).EnumVar(&c.output, OutputText, OutputJSON)

	return c
}

func (reportCommand) Name() string { return "report" }
func (r reportCommand) Run(ctx context.Context, config RootConfig) error {
	if r.lookbackHours < 1 {
		return fmt.Errorf("lookback hours must be at least 1, got %d", r.lookbackHours)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	engine, closeSource, err := app.NewEngine(ctx, cfg, nil, config.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeSource() }()

	set := engine.AssembleReports(ctx, time.Now().UTC(), r.lookbackHours)

	if r.output == OutputJSON {
		return report.WriteJSON(config.Stdout, set)
	}

	rec := policy.NewEngine().Recommend(set)
	return report.WriteText(config.Stdout, engine.Definition(), r.lookbackHours, set, rec)
}
