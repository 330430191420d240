package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/internal/app"
	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/report"
	"github.com/samijaber1/aegis-budget/internal/storage"
)

type dashboardCommand struct {
	noCollect    bool
	window       string
	points       int
	historyHours int
}

// NewDashboardCommand returns the dashboard command.
func NewDashboardCommand(app *kingpin.Application) Command {
	c := &dashboardCommand{}
	cmd := app.Command("dashboard", "Collects a fresh tick and prints the current budget with its recent trend.")
	cmd.Flag("no-collect", "Only read the recorded history.").BoolVar(&c.noCollect)
	cmd.Flag("window", "Window used for current metrics and trend.").Default("1h").StringVar(&c.window)
	cmd.Flag("points", "Number of history points compared by the trend.").Default("6").IntVar(&c.points)
	cmd.Flag("history-hours", "History range read for the trend.").Default("24").IntVar(&c.historyHours)

	return c
}

func (dashboardCommand) Name() string { return "dashboard" }
func (d dashboardCommand) Run(ctx context.Context, config RootConfig) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	components, err := app.Build(ctx, cfg, nil, config.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	if !d.noCollect {
		if snap, err := components.Monitor.RunOnce(ctx); err != nil {
			if snap == nil {
				return fmt.Errorf("could not collect: %w", err)
			}
			config.Logger.Sugar().Warnf("tick completed with errors: %v", err)
		}
	}

	now := time.Now().UTC()

	latest, err := components.Store.Latest(ctx, d.window)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("could not read latest entry: %w", err)
	}

	entries, err := components.Store.QueryRecent(ctx, now, d.historyHours)
	if err != nil {
		return fmt.Errorf("could not read history: %w", err)
	}
	trend := eval.ComputeTrend(storage.TrendPoints(entries), d.window, d.points)

	return report.WriteDashboard(config.Stdout, components.Definition, latest, trend, now)
}
